package domain

// PriceSample is a single oracle read.
// Stored in price_samples (ClickHouse or memory).
type PriceSample struct {
	Feed        string  // price feed contract address
	Symbol      string  // "POL" | "DAI"
	Price       float64 // answer scaled by 10^8
	Answer      int64   // raw fixed-point answer
	TimestampMs int64   // read time, Unix ms
}

// Price symbols served by the gateway.
const (
	SymbolPOL = "POL"
	SymbolDAI = "DAI"
)
