package domain

// TxStatus is the lifecycle state of a submitted transaction record.
type TxStatus string

const (
	TxStatusSubmitted TxStatus = "submitted"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFailed    TxStatus = "failed"
)

// TransactionRecord mirrors one pipeline invocation for audit queries.
// The chain stays the source of truth; this record is never used to decide
// whether a transaction happened.
type TransactionRecord struct {
	ID             string        `json:"id"`               // request id
	Kind           OperationKind `json:"kind"`             // operation
	IdempotencyKey string        `json:"idempotency_key"`  // client key, may be empty
	TxHash         string        `json:"transaction_hash"` // empty until signed
	Nonce          uint64        `json:"nonce"`
	Status         TxStatus      `json:"status"`
	Error          string        `json:"error,omitempty"`
	BlockNumber    uint64        `json:"block_number,omitempty"`
	GasUsed        uint64        `json:"gas_used,omitempty"`
	CreatedAt      int64         `json:"created_at"` // Unix ms
	UpdatedAt      int64         `json:"updated_at"` // Unix ms
}

// TransactionEvent is published after a transaction confirms.
type TransactionEvent struct {
	ID          string        `json:"id"`
	Kind        OperationKind `json:"kind"`
	TxHash      string        `json:"transaction_hash"`
	Nonce       uint64        `json:"nonce"`
	BlockNumber uint64        `json:"block_number"`
	AmountA     float64       `json:"amount_a"`
	AmountB     float64       `json:"amount_b"`
	Timestamp   int64         `json:"timestamp"` // Unix seconds
}
