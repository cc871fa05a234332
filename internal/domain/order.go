package domain

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType indicates the time-in-force policy.
type OrderType string

const (
	OrderTypeGTC OrderType = "GTC" // Good-Till-Cancelled
	OrderTypeFOK OrderType = "FOK" // Fill-Or-Kill
	OrderTypeFAK OrderType = "FAK" // Fill-And-Kill
)

// ExecutionResult is the venue's answer for one submitted leg.
type ExecutionResult struct {
	Success      bool     `json:"success"`
	OrderID      string   `json:"order_id,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	TxHashes     []string `json:"tx_hashes,omitempty"`
}

// FailedResult builds a failed leg result from an error.
func FailedResult(err error) ExecutionResult {
	msg := "Unknown error"
	if err != nil {
		msg = err.Error()
	}
	return ExecutionResult{Success: false, ErrorMessage: msg}
}
