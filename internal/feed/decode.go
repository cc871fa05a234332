package feed

import (
	"bytes"
	"encoding/json"

	"github.com/alanyoungcy/polyarb/internal/domain"
	"github.com/alanyoungcy/polyarb/internal/platform/polymarket"
)

// Event is one decoded market-channel event. The set of implementations is
// closed: BookEvent, PriceChangeEvent, LastTradeEvent and UnknownEvent.
type Event interface {
	EventType() string
	isEvent()
}

// BookEvent is a full book snapshot for one asset.
type BookEvent struct {
	polymarket.APIBook
}

// PriceChange is one level change inside a PriceChangeEvent.
type PriceChange struct {
	AssetID string `json:"asset_id"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	Side    string `json:"side"`
	BestBid string `json:"best_bid"`
	BestAsk string `json:"best_ask"`
}

// PriceChangeEvent carries incremental level updates.
type PriceChangeEvent struct {
	AssetID      string        `json:"asset_id"`
	Market       string        `json:"market"`
	Changes      []PriceChange `json:"changes"`
	PriceChanges []PriceChange `json:"price_changes"`
	Timestamp    string        `json:"timestamp"`
}

// LastTradeEvent is a trade print.
type LastTradeEvent struct {
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"`
	Timestamp string `json:"timestamp"`
}

// UnknownEvent is any event whose type is not recognised.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (BookEvent) EventType() string        { return "book" }
func (PriceChangeEvent) EventType() string { return "price_change" }
func (LastTradeEvent) EventType() string   { return "last_trade_price" }
func (e UnknownEvent) EventType() string   { return e.Type }

func (BookEvent) isEvent()        {}
func (PriceChangeEvent) isEvent() {}
func (LastTradeEvent) isEvent()   {}
func (UnknownEvent) isEvent()     {}

// AllChanges returns the level changes regardless of which field carried them.
func (e PriceChangeEvent) AllChanges() []PriceChange {
	if len(e.PriceChanges) > 0 {
		return e.PriceChanges
	}
	return e.Changes
}

// DecodeFrame decodes a frame holding one event object or an array of them.
// Malformed frames yield no events; a malformed element inside an array is
// skipped.
func DecodeFrame(data []byte) []Event {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	if data[0] == '[' {
		var raws []json.RawMessage
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil
		}
		events := make([]Event, 0, len(raws))
		for _, raw := range raws {
			if ev, ok := decodeEvent(raw); ok {
				events = append(events, ev)
			}
		}
		return events
	}

	if ev, ok := decodeEvent(data); ok {
		return []Event{ev}
	}
	return nil
}

func decodeEvent(raw json.RawMessage) (Event, bool) {
	var envelope struct {
		EventType string `json:"event_type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false
	}

	switch envelope.EventType {
	case "book":
		var ev BookEvent
		if err := json.Unmarshal(raw, &ev.APIBook); err != nil {
			return nil, false
		}
		return ev, true
	case "price_change":
		var ev PriceChangeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, false
		}
		return ev, true
	case "last_trade_price":
		var ev LastTradeEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, false
		}
		return ev, true
	default:
		return UnknownEvent{Type: envelope.EventType, Raw: raw}, true
	}
}

// PriceUpdate converts the book into a top-of-book update. It reports false
// when the book has neither a bid nor an ask.
func (e BookEvent) PriceUpdate() (domain.PriceUpdate, bool) {
	snap := e.ToDomainSnapshot()
	u := domain.PriceUpdate{
		TokenID:   snap.TokenID,
		MarketID:  snap.MarketID,
		Timestamp: snap.Timestamp,
	}
	if bid, ok := snap.BestBid(); ok {
		p := bid.Price
		u.BestBid = &p
	}
	if ask, ok := snap.BestAsk(); ok {
		p := ask.Price
		u.BestAsk = &p
	}
	if u.TokenID == "" || (u.BestBid == nil && u.BestAsk == nil) {
		return domain.PriceUpdate{}, false
	}
	return u, true
}
