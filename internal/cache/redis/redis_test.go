package redis

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyarb/internal/domain"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "polyarb:pairs", key("pairs"))
	assert.Equal(t, "polyarb:top:123", key("top", "123"))
	assert.Equal(t, "polyarb:lock:polyarb:exec:m1", key("lock", "polyarb:exec:m1"))
}

func TestPairCodec(t *testing.T) {
	pairs := []domain.MarketPair{
		{MarketID: "m1", YesTokenID: "y1", NoTokenID: "n1", Description: "BTC above 100k?"},
		{MarketID: "m2", YesTokenID: "y2", NoTokenID: "n2"},
	}
	data, err := encodePairs(pairs)
	require.NoError(t, err)

	got, err := decodePairs(data)
	require.NoError(t, err)
	assert.Equal(t, pairs, got)

	empty, err := encodePairs(nil)
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(empty))
}

func TestDecodePairs_DropsHalfPairs(t *testing.T) {
	got, err := decodePairs([]byte(`[
		{"market_id":"m1","yes_token_id":"y1","no_token_id":""},
		{"market_id":"m2","yes_token_id":"y2","no_token_id":"n2"}
	]`))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m2", got[0].MarketID)

	_, err = decodePairs([]byte(`{not json`))
	assert.Error(t, err)
}

func TestTopFieldsRoundTrip(t *testing.T) {
	ask := decimal.RequireFromString("0.48")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	fields := topFields(domain.PriceUpdate{TokenID: "t1", MarketID: "m1", BestAsk: &ask, Timestamp: ts})
	assert.NotContains(t, fields, "bid")

	vals := make(map[string]string, len(fields))
	for k, v := range fields {
		vals[k] = v.(string)
	}
	u, err := parseTop("t1", vals)
	require.NoError(t, err)
	assert.Equal(t, "m1", u.MarketID)
	assert.Nil(t, u.BestBid)
	require.NotNil(t, u.BestAsk)
	assert.True(t, u.BestAsk.Equal(ask))
	assert.True(t, u.Timestamp.Equal(ts))

	_, err = parseTop("t1", map[string]string{"ask": "abc"})
	assert.Error(t, err)
}

func TestChannel(t *testing.T) {
	assert.Equal(t, "polyarb:opportunities", Channel("opportunities"))
}
