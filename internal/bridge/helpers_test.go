package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbridge/internal/types"
)

func TestParseNanoTON(t *testing.T) {
	t.Parallel()

	v, err := parseNanoTON("200000")
	require.NoError(t, err)
	assert.Equal(t, uint64(200000), v)

	_, err = parseNanoTON("not-a-number")
	assert.Error(t, err)
}

func TestRequireCaller(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, requireCaller(""), ErrAnonymous)
	assert.NoError(t, requireCaller("principal-1"))
}

func TestWalletRegistryPutGet(t *testing.T) {
	t.Parallel()

	reg := NewWalletRegistry()
	_, ok := reg.Get(types.Account{Owner: "a"})
	assert.False(t, ok)

	dw := types.DeployedWallet{TONAddress: "EQa", SequenceNumber: 2}
	reg.Put(types.Account{Owner: "a"}, dw)
	got, ok := reg.Get(types.Account{Owner: "a"})
	require.True(t, ok)
	assert.Equal(t, dw, got)
	assert.Equal(t, 1, reg.Count())
}
