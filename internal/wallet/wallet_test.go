package wallet

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tonbridge/internal/config"
)

func TestDeriveAddress(t *testing.T) {
	t.Parallel()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr, err := DeriveAddress(pub, config.NetworkLocal)
	require.NoError(t, err)
	assert.NotNil(t, addr)

	again, err := DeriveAddress(pub, config.NetworkLocal)
	require.NoError(t, err)
	assert.Equal(t, addr.String(), again.String(), "address derivation must be pure/deterministic")
}

func TestFormatAddress(t *testing.T) {
	t.Parallel()

	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, err := DeriveAddress(pub, config.NetworkLocal)
	require.NoError(t, err)

	tests := []struct {
		name string
		env  config.Env
	}{
		{name: "dev is non-bounceable", env: config.EnvDev},
		{name: "prod is bounceable", env: config.EnvProd},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			formatted := FormatAddress(addr, tt.env)
			assert.NotEmpty(t, formatted)

			formattedAgain := FormatAddress(addr, tt.env)
			assert.Equal(t, formatted, formattedAgain, "formatting the same address+env must be stable")
		})
	}

	devFormatted := FormatAddress(addr, config.EnvDev)
	prodFormatted := FormatAddress(addr, config.EnvProd)
	assert.NotEqual(t, devFormatted, prodFormatted, "bounceable flag must affect the rendered address")
}
