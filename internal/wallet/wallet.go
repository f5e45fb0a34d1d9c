// Package wallet implements the Wallet Builder (spec.md §4.3): address
// derivation, V4R2 deploy message construction, and V4R2 transfer message
// construction, all signed through a remote Signer Adapter instead of a
// locally-held private key.
//
// tonutils-go's own wallet.Wallet type signs internally against an
// ed25519.PrivateKey it holds (see its spec.Sign implementations), which is
// incompatible with a threshold signer reached over HTTP. This package
// reuses tonutils-go only for the primitives that don't assume local
// custody of the key — address derivation, state-init construction, and the
// cell/tlb builders — and hand-assembles the V4R2 signing payload itself,
// exactly as the library's own SpecV4R2 does internally, then calls out to
// the Signer Adapter for the signature bytes.
package wallet

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton/wallet"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"tonbridge/internal/config"
	"tonbridge/internal/signer"
)

// SendMode mirrors the TON message-send mode bits used across deploy and
// transfer construction (spec.md §4.3).
type SendMode uint8

const (
	SendModeDefault        SendMode = 3
	SendModeCarryBalance   SendMode = 128
	SendModeCarryAndDestroy SendMode = 160
)

// DefaultSubwallet matches tonutils-go's own default and the value the
// threshold key is derived under.
const DefaultSubwallet uint32 = 698983191

// DefaultExpirySeconds is how far past now an unset expire_at defaults to
// (spec.md §4.3: "expire_at defaults to now_unix_s + 60").
const DefaultExpirySeconds = 60

// resolveExpiry returns expireAt if set, else now+DefaultExpirySeconds.
func resolveExpiry(expireAt int64) uint32 {
	if expireAt != 0 {
		return uint32(expireAt)
	}
	return uint32(time.Now().Unix() + DefaultExpirySeconds)
}

// DeriveAddress computes the V4R2 address for a public key without any
// network call, mirroring spec.md §4.3 "derive_address is pure".
func DeriveAddress(pubKey []byte, network config.Network) (*address.Address, error) {
	addr, err := wallet.AddressFromPubKey(pubKey, wallet.V4R2, DefaultSubwallet)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive address: %w", err)
	}
	return addr, nil
}

// FormatAddress renders addr using the single formatting rule the bridge
// applies everywhere an address is surfaced, resolving the divergence
// spec.md §9 flags between the address handed out at deploy time and the
// one later observed arriving on-chain: bounceable when APP_ENV is prod,
// non-bounceable when it is dev, always user-friendly
// (base64url), never raw workchain:hex.
func FormatAddress(addr *address.Address, env config.Env) string {
	bounceable := env == config.EnvProd
	return addr.Bounce(bounceable).Base64()
}

// orderMessage is one leg of a V4R2 order: a send mode plus the internal
// message it carries.
type orderMessage struct {
	mode SendMode
	body *tlb.InternalMessage
}

// buildOrderFields writes the V4R2 signed-order layout shared by both the
// hash computed for signing and the final signed body: subwallet_id(32) ++
// valid_until(32) ++ seqno(32) ++ op(8, always 0 for a plain order) ++
// (mode(8) ++ ref(internal message))*.
func buildOrderFields(subwallet, validUntil, seqno uint32, msgs []orderMessage) (*cell.Builder, error) {
	b := cell.BeginCell().
		MustStoreUInt(uint64(subwallet), 32).
		MustStoreUInt(uint64(validUntil), 32).
		MustStoreUInt(uint64(seqno), 32).
		MustStoreUInt(0, 8)

	for _, m := range msgs {
		msgCell, err := tlb.ToCell(m.body)
		if err != nil {
			return nil, fmt.Errorf("wallet: encode internal message: %w", err)
		}
		b = b.MustStoreUInt(uint64(m.mode), 8)
		if err := b.StoreRef(msgCell); err != nil {
			return nil, fmt.Errorf("wallet: store message ref: %w", err)
		}
	}
	return b, nil
}

// signOrder hashes the order fields, obtains a signature from adp, and
// returns the final signed body cell (signature ++ order fields). Builders
// are append-only, so the fields are assembled twice: once to produce the
// hash that gets signed, once to merge behind the signature in the final
// cell.
func signOrder(ctx context.Context, adp signer.Adapter, subwallet, validUntil, seqno uint32, msgs []orderMessage) (*cell.Cell, error) {
	unsigned, err := buildOrderFields(subwallet, validUntil, seqno, msgs)
	if err != nil {
		return nil, err
	}
	unsignedCell := unsigned.EndCell()

	sig, err := adp.Sign(ctx, unsignedCell.Hash())
	if err != nil {
		return nil, fmt.Errorf("wallet: sign order: %w", err)
	}

	fields, err := buildOrderFields(subwallet, validUntil, seqno, msgs)
	if err != nil {
		return nil, err
	}

	final := cell.BeginCell()
	if err := final.StoreSlice(sig, uint(len(sig)*8)); err != nil {
		return nil, fmt.Errorf("wallet: store signature: %w", err)
	}
	if err := final.StoreBuilder(fields); err != nil {
		return nil, fmt.Errorf("wallet: merge order fields: %w", err)
	}
	return final.EndCell(), nil
}

// BuildDeployMessage constructs the external message that deploys a V4R2
// wallet contract for adp's public key at seqno 0 (spec.md §4.3
// build_deploy_message: "builds an external body with no internal
// messages" — deploy only carries the state init, it does not also move
// value).
func BuildDeployMessage(ctx context.Context, adp signer.Adapter, expireAt int64) (*tlb.ExternalMessage, error) {
	stateInit, err := wallet.GetStateInit(adp.PublicKey(), wallet.V4R2, DefaultSubwallet)
	if err != nil {
		return nil, fmt.Errorf("wallet: build state init: %w", err)
	}

	selfAddr, err := wallet.AddressFromPubKey(adp.PublicKey(), wallet.V4R2, DefaultSubwallet)
	if err != nil {
		return nil, fmt.Errorf("wallet: derive deploy address: %w", err)
	}

	body, err := signOrder(ctx, adp, DefaultSubwallet, resolveExpiry(expireAt), 0, nil)
	if err != nil {
		return nil, err
	}

	return &tlb.ExternalMessage{
		DstAddr:   selfAddr,
		StateInit: stateInit,
		Body:      body,
	}, nil
}

// BuildTransferMessage constructs the external message that sends amount to
// dst from the wallet already deployed at src, at the given seqno (spec.md
// §4.3 build_transfer_message). comment, if non-empty, is attached as a
// plain-text comment body on the internal message.
func BuildTransferMessage(ctx context.Context, adp signer.Adapter, src, dst *address.Address, amount tlb.Coins, seqno uint32, mode SendMode, comment string, expireAt int64) (*tlb.ExternalMessage, error) {
	var body *cell.Cell
	if comment != "" {
		c, err := wallet.CreateCommentCell(comment)
		if err != nil {
			return nil, fmt.Errorf("wallet: build comment: %w", err)
		}
		body = c
	}

	msgs := []orderMessage{{
		mode: mode,
		body: &tlb.InternalMessage{
			IHRDisabled: false,
			Bounce:      false,
			DstAddr:     dst,
			Amount:      amount,
			Body:        body,
		},
	}}

	signedBody, err := signOrder(ctx, adp, DefaultSubwallet, resolveExpiry(expireAt), seqno, msgs)
	if err != nil {
		return nil, err
	}

	return &tlb.ExternalMessage{
		DstAddr: src,
		Body:    signedBody,
	}, nil
}

// ExternalMessageToBOC base64-encodes an external message's BoC, the form
// the TON RPC Client's send_boc proxy call expects (spec.md §4.2, §4.3).
func ExternalMessageToBOC(ext *tlb.ExternalMessage) (string, error) {
	extCell, err := tlb.ToCell(ext)
	if err != nil {
		return "", fmt.Errorf("wallet: encode external message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(extCell.ToBOC()), nil
}
