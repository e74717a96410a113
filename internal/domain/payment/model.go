package payment

import (
	"github.com/shopspring/decimal"

	"github.com/subcycle/subcycle/internal/types"
)

// Transaction is the durable record of a charge issued by the lifecycle
// engine (initial charge, renewal, upgrade). It is written in the same
// transaction as the ledger mutation it belongs to: a failed write here must
// not let the subscription transition silently succeed.
type Transaction struct {
	ID             string `db:"id" json:"id"`
	Reference      string `db:"reference" json:"reference"`
	CustomerID     string `db:"customer_id" json:"customer_id"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	Kind          types.TransactionKind `db:"kind" json:"kind"`
	Amount        decimal.Decimal       `db:"amount" json:"amount"`
	Currency      string                `db:"currency" json:"currency"`
	PaymentMethod string                `db:"payment_method" json:"payment_method"`

	// GatewayRef is the processor-side identifier of the charge, if any
	GatewayRef string `db:"gateway_ref" json:"gateway_ref"`

	types.BaseModel
}

// PaymentData is the caller-supplied payment information for an operation
// that may issue a charge.
type PaymentData struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	PaymentMethod string          `json:"payment_method"`
	GatewayRef    string          `json:"gateway_ref"`
}
