package polymarket

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyarb/internal/crypto"
	"github.com/alanyoungcy/polyarb/internal/domain"
)

// endCursor marks the last page of a paginated CLOB listing.
const endCursor = "LTE="

// flexBool unmarshals from JSON bool or string ("true"/"false").
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexDecimal accepts both JSON numbers and numeric strings. Empty or null
// values decode to zero.
type flexDecimal struct{ decimal.Decimal }

func (f *flexDecimal) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		f.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	f.Decimal = d
	return nil
}

// --------------------------------------------------------------------------
// Market listing DTOs
// --------------------------------------------------------------------------

// MarketsPage is one page of the /sampling-markets listing.
type MarketsPage struct {
	Data       []APIMarket `json:"data"`
	NextCursor string      `json:"next_cursor"`
	Limit      int         `json:"limit"`
	Count      int         `json:"count"`
}

// APIMarket is a market as returned by the CLOB listing endpoints.
type APIMarket struct {
	ConditionID      string      `json:"condition_id"`
	QuestionID       string      `json:"question_id"`
	Question         string      `json:"question"`
	Description      string      `json:"description"`
	MarketSlug       string      `json:"market_slug"`
	Tokens           []APIToken  `json:"tokens"`
	MinimumOrderSize flexDecimal `json:"minimum_order_size"`
	MinimumTickSize  flexDecimal `json:"minimum_tick_size"`
	NegRisk          flexBool    `json:"neg_risk"`
	Active           flexBool    `json:"active"`
	Closed           flexBool    `json:"closed"`
	AcceptingOrders  flexBool    `json:"accepting_orders"`
}

// APIToken is an outcome token entry inside a market listing.
type APIToken struct {
	TokenID string      `json:"token_id"`
	Outcome string      `json:"outcome"`
	Price   flexDecimal `json:"price"`
	Winner  bool        `json:"winner"`
}

// ToDomainMarket converts an APIMarket to a domain.Market.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ConditionID:      m.ConditionID,
		QuestionID:       m.QuestionID,
		Question:         m.Question,
		Slug:             m.MarketSlug,
		MinimumOrderSize: m.MinimumOrderSize.Decimal,
		MinimumTickSize:  m.MinimumTickSize.Decimal,
		NegRisk:          bool(m.NegRisk),
		Active:           bool(m.Active),
		Closed:           bool(m.Closed),
		AcceptingOrders:  bool(m.AcceptingOrders),
		Tokens:           make([]domain.Token, 0, len(m.Tokens)),
	}
	for _, t := range m.Tokens {
		dm.Tokens = append(dm.Tokens, domain.Token{
			TokenID: t.TokenID,
			Outcome: t.Outcome,
			Price:   t.Price.Decimal,
			Winner:  t.Winner,
		})
	}
	return dm
}

// --------------------------------------------------------------------------
// Orderbook DTOs
// --------------------------------------------------------------------------

// APIBook is the /book response and the payload of a "book" stream event.
type APIBook struct {
	Market    string          `json:"market"`
	AssetID   string          `json:"asset_id"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Hash      string          `json:"hash"`
	Timestamp string          `json:"timestamp"`
}

// APIPriceLevel is a single bid/ask level. Price and size arrive as strings.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToDomainSnapshot converts the book into a snapshot with bids sorted best
// (highest) first and asks best (lowest) first. The venue does not promise
// any particular ordering. Levels that fail to parse are skipped.
func (b *APIBook) ToDomainSnapshot() domain.OrderBookSnapshot {
	snap := domain.OrderBookSnapshot{
		TokenID:   b.AssetID,
		MarketID:  b.Market,
		Bids:      parseLevels(b.Bids),
		Asks:      parseLevels(b.Asks),
		Hash:      b.Hash,
		Timestamp: ParseTimestamp(b.Timestamp),
	}
	sort.SliceStable(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price.GreaterThan(snap.Bids[j].Price) })
	sort.SliceStable(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price.LessThan(snap.Asks[j].Price) })
	return snap
}

func parseLevels(levels []APIPriceLevel) []domain.PriceLevel {
	out := make([]domain.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		p, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		s, err := decimal.NewFromString(lvl.Size)
		if err != nil {
			continue
		}
		out = append(out, domain.PriceLevel{Price: p, Size: s})
	}
	return out
}

// ParseTimestamp accepts unix seconds, unix milliseconds, or RFC 3339. It
// falls back to the current time.
func ParseTimestamp(s string) time.Time {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n)
		}
		return time.Unix(n, 0)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	return time.Now()
}

// --------------------------------------------------------------------------
// Order DTOs
// --------------------------------------------------------------------------

// apiOrder is the signed order as the /order endpoint expects it. The salt
// is sent as a JSON number, side as its name.
type apiOrder struct {
	Salt          uint64 `json:"salt"`
	Maker         string `json:"maker"`
	Signer        string `json:"signer"`
	Taker         string `json:"taker"`
	TokenID       string `json:"tokenId"`
	MakerAmount   string `json:"makerAmount"`
	TakerAmount   string `json:"takerAmount"`
	Expiration    string `json:"expiration"`
	Nonce         string `json:"nonce"`
	FeeRateBps    string `json:"feeRateBps"`
	Side          string `json:"side"`
	SignatureType int    `json:"signatureType"`
	Signature     string `json:"signature"`
}

// postOrderRequest is the /order request body.
type postOrderRequest struct {
	Order     apiOrder `json:"order"`
	Owner     string   `json:"owner"`
	OrderType string   `json:"orderType"`
}

func newPostOrderRequest(o crypto.SignedOrder, owner string, orderType domain.OrderType) postOrderRequest {
	salt, _ := strconv.ParseUint(o.Salt, 10, 64)
	return postOrderRequest{
		Order: apiOrder{
			Salt:          salt,
			Maker:         o.Maker,
			Signer:        o.Signer,
			Taker:         o.Taker,
			TokenID:       o.TokenID,
			MakerAmount:   o.MakerAmount,
			TakerAmount:   o.TakerAmount,
			Expiration:    o.Expiration,
			Nonce:         o.Nonce,
			FeeRateBps:    o.FeeRateBps,
			Side:          string(o.SideName()),
			SignatureType: o.SignatureType,
			Signature:     o.Signature,
		},
		Owner:     owner,
		OrderType: string(orderType),
	}
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success            bool     `json:"success"`
	ErrorMsg           string   `json:"errorMsg,omitempty"`
	OrderID            string   `json:"orderID,omitempty"`
	Status             string   `json:"status,omitempty"`
	TransactionsHashes []string `json:"transactionsHashes,omitempty"`
}

// ToExecutionResult converts the response to a domain.ExecutionResult. A
// rejected order without an error message gets a generic one.
func (r *APIOrderResult) ToExecutionResult() domain.ExecutionResult {
	res := domain.ExecutionResult{
		Success:  r.Success,
		OrderID:  r.OrderID,
		TxHashes: r.TransactionsHashes,
	}
	if !r.Success {
		res.ErrorMessage = r.ErrorMsg
		if res.ErrorMessage == "" {
			res.ErrorMessage = "Unknown error"
		}
	}
	return res
}

// apiCredentials is the /auth/derive-api-key response.
type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}
