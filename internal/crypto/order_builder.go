package crypto

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Collateral and outcome tokens both use 6 decimals on chain.
const tokenDecimals = 6

// OrderBuilder turns a quote-currency amount into a signed fill-or-kill
// market buy.
type OrderBuilder struct {
	signer        *Signer
	maker         common.Address
	signatureType int
}

// NewOrderBuilder creates a builder. funder is the address holding collateral;
// when empty the signer's own address is used.
func NewOrderBuilder(signer *Signer, funder string, signatureType int) *OrderBuilder {
	maker := signer.Address()
	if funder != "" {
		maker = common.HexToAddress(funder)
	}
	return &OrderBuilder{signer: signer, maker: maker, signatureType: signatureType}
}

// MarketBuy builds and signs a BUY order spending amount of collateral at
// no worse than price. The maker amount is truncated to cents and the taker
// amount to four decimals, matching the venue's rounding rules.
func (b *OrderBuilder) MarketBuy(tokenID string, amount, price decimal.Decimal) (SignedOrder, error) {
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return SignedOrder{}, fmt.Errorf("crypto/order: %w: price %s out of (0, 1)", domain.ErrInvalidOrder, price)
	}
	makerAmt := amount.Truncate(2)
	if !makerAmt.IsPositive() {
		return SignedOrder{}, fmt.Errorf("crypto/order: %w: amount %s too small", domain.ErrInvalidOrder, amount)
	}
	takerAmt := makerAmt.Div(price).Truncate(4)

	payload := OrderPayload{
		Salt:          newSalt(),
		Maker:         b.maker.Hex(),
		Signer:        b.signer.Address().Hex(),
		Taker:         zeroAddress,
		TokenID:       tokenID,
		MakerAmount:   toBaseUnits(makerAmt),
		TakerAmount:   toBaseUnits(takerAmt),
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		Side:          0,
		SignatureType: b.signatureType,
	}

	sig, err := b.signer.SignOrder(payload)
	if err != nil {
		return SignedOrder{}, fmt.Errorf("crypto/order: sign %s: %w", tokenID, err)
	}
	return SignedOrder{OrderPayload: payload, Signature: sig}, nil
}

func toBaseUnits(d decimal.Decimal) string {
	return d.Shift(tokenDecimals).Truncate(0).String()
}

// newSalt derives a positive 53-bit salt from a random UUID so it fits the
// integer the API expects in JSON.
func newSalt() string {
	id := uuid.New()
	n := binary.BigEndian.Uint64(id[:8]) & (1<<53 - 1)
	return strconv.FormatUint(n, 10)
}
