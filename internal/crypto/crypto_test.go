package crypto

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

// Well-known development key (hardhat account #0).
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestNewSigner(t *testing.T) {
	s, err := NewSigner("0x"+testKey, 137)
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Address().Hex())

	_, err = NewSigner("not-hex", 137)
	assert.ErrorIs(t, err, domain.ErrSigningFailed)

	_, err = NewSigner(testKey, 1)
	assert.Error(t, err)
}

func TestSignOrder_Deterministic(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)

	p := OrderPayload{
		Salt: "1", Maker: s.Address().Hex(), Signer: s.Address().Hex(), Taker: zeroAddress,
		TokenID: "1234", MakerAmount: "4000000", TakerAmount: "10000000",
		Expiration: "0", Nonce: "0", FeeRateBps: "0",
	}
	a, err := s.SignOrder(p)
	require.NoError(t, err)
	b, err := s.SignOrder(p)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, "0x"))
	assert.Len(t, a, 2+130)
	v := a[len(a)-2:]
	assert.Contains(t, []string{"1b", "1c"}, v)

	p.TokenID = "bad"
	_, err = s.SignOrder(p)
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderBuilder_MarketBuy(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)
	b := NewOrderBuilder(s, "", 0)

	// 10 shares at 0.40 costs 4.00 collateral.
	order, err := b.MarketBuy("555", decimal.RequireFromString("4.00"), decimal.RequireFromString("0.40"))
	require.NoError(t, err)

	assert.Equal(t, "4000000", order.MakerAmount)
	assert.Equal(t, "10000000", order.TakerAmount)
	assert.Equal(t, 0, order.Side)
	assert.Equal(t, domain.OrderSideBuy, order.SideName())
	assert.Equal(t, s.Address().Hex(), order.Maker)
	assert.NotEmpty(t, order.Signature)
	assert.NotEmpty(t, order.Salt)

	_, err = b.MarketBuy("555", decimal.RequireFromString("4"), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = b.MarketBuy("555", decimal.RequireFromString("0.001"), decimal.RequireFromString("0.5"))
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestOrderBuilder_FunderOverridesMaker(t *testing.T) {
	s, err := NewSigner(testKey, 137)
	require.NoError(t, err)
	funder := "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

	order, err := NewOrderBuilder(s, funder, 2).MarketBuy("1", decimal.NewFromInt(5), decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	assert.Equal(t, funder, order.Maker)
	assert.Equal(t, s.Address().Hex(), order.Signer)
	assert.Equal(t, 2, order.SignatureType)
}

func TestHMACAuth_L2Headers(t *testing.T) {
	h := &HMACAuth{
		Key:        "key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("secret")),
		Passphrase: "pass",
		now:        func() time.Time { return time.Unix(1700000000, 0) },
	}

	a := h.L2Headers("0xabc", "POST", "/order", `{"a":1}`)
	b := h.L2Headers("0xabc", "POST", "/order", `{"a":1}`)
	c := h.L2Headers("0xabc", "POST", "/order", `{"a":2}`)

	assert.Equal(t, "1700000000", a["POLY_TIMESTAMP"])
	assert.Equal(t, "key", a["POLY_API_KEY"])
	assert.Equal(t, a["POLY_SIGNATURE"], b["POLY_SIGNATURE"])
	assert.NotEqual(t, a["POLY_SIGNATURE"], c["POLY_SIGNATURE"])
}

func TestHMACAuth_StringMasksSecrets(t *testing.T) {
	h := &HMACAuth{
		Key:        "3f9a1c2e-key",
		Secret:     base64.URLEncoding.EncodeToString([]byte("secret")),
		Passphrase: "passphrase-value",
	}

	out := h.String()
	assert.Equal(t, "HMACAuth{key=3f9a****, secret=****, passphrase=****}", out)
	assert.NotContains(t, out, h.Secret[:4])
	assert.NotContains(t, out, h.Passphrase)
}

func TestSealAndOpenKey(t *testing.T) {
	blob, err := SealKey("0x"+testKey, "hunter2")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err := ResolveKey(KeySource{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, testKey, got)

	_, err = ResolveKey(KeySource{EncryptedKeyPath: path, KeyPassword: "wrong"})
	assert.Error(t, err)

	_, err = ResolveKey(KeySource{})
	assert.Error(t, err)

	raw, err := ResolveKey(KeySource{RawPrivateKey: "0x" + testKey, EncryptedKeyPath: path})
	require.NoError(t, err)
	assert.Equal(t, testKey, raw)
}
