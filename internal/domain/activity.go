package domain

// OperationKind identifies which pipeline operation produced an activity entry.
type OperationKind string

const (
	KindTransfer      OperationKind = "transfer"
	KindBuy           OperationKind = "buy"
	KindSell          OperationKind = "sell"
	KindSwap          OperationKind = "swap"
	KindRebalance     OperationKind = "rebalance"
	KindAutoRebalance OperationKind = "auto_rebalance"

	// KindLegacy marks three-column numeric rows written before the kind column existed.
	KindLegacy OperationKind = "legacy"
)

// String returns the string representation of OperationKind.
func (k OperationKind) String() string {
	return string(k)
}

// IsValid checks if the kind is a known value.
func (k OperationKind) IsValid() bool {
	switch k {
	case KindTransfer, KindBuy, KindSell, KindSwap, KindRebalance, KindAutoRebalance, KindLegacy:
		return true
	}
	return false
}

// ActivityEntry is one line of the append-only activity log.
// Column meaning of AmountA/AmountB depends on Kind:
//
//	transfer        POL sent, 0
//	buy             POL expected out, stablecoin in
//	sell            POL in, stablecoin expected out
//	swap            POL in, token-out expected
//	rebalance       token A supplied, token B supplied
//	auto_rebalance  token A supplied, token B supplied
type ActivityEntry struct {
	Timestamp    int64 // Unix seconds
	AmountA      float64
	AmountB      float64
	Kind         OperationKind
	Counterparty string // optional: recipient, router, token or token pair
}

// RebalanceDecision is the advisory output of the moving-average signal.
// At most one flag is set.
type RebalanceDecision struct {
	Buy       bool `json:"buy"`
	Sell      bool `json:"sell"`
	Rebalance bool `json:"rebalance"`
}
