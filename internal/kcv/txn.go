package kcv

import "github.com/google/uuid"

// Transaction carries the identity of one caller transaction through
// reads and metric events. The caching layer never interprets it beyond
// forwarding it to the backend and the metrics sink.
type Transaction struct {
	ID uuid.UUID
}

// NewTransaction returns a transaction with a fresh identity.
func NewTransaction() *Transaction {
	return &Transaction{ID: uuid.New()}
}

// String returns the transaction identity, or "-" for a nil transaction.
func (t *Transaction) String() string {
	if t == nil {
		return "-"
	}
	return t.ID.String()
}
