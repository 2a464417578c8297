package paystack

import (
	"time"

	"github.com/shopspring/decimal"
)

// InitializeRequest opens a provider-hosted checkout session. Amount is in
// major units; the client converts to the provider's minor unit on the wire.
type InitializeRequest struct {
	Email       string
	Amount      decimal.Decimal
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

type InitializeResult struct {
	AuthorizationURL  string
	AccessCode        string
	ProviderReference string
	Raw               []byte
}

// ChargeRequest charges a stored reusable authorization immediately.
type ChargeRequest struct {
	Email             string
	Amount            decimal.Decimal
	Reference         string
	AuthorizationCode string
}

// Authorization is the provider's tokenized instrument descriptor. When
// Reusable is set the token may be stored for future charges.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	CardType          string `json:"card_type"`
	Last4             string `json:"last4"`
	ExpMonth          string `json:"exp_month"`
	ExpYear           string `json:"exp_year"`
	Bank              string `json:"bank"`
	Reusable          bool   `json:"reusable"`
}

// ChargeOutcome is the provider's word on a single charge, shared by the
// verify and charge-authorization calls.
type ChargeOutcome struct {
	Success       bool
	Status        string
	Reference     string
	PaidAt        time.Time
	Authorization Authorization
	// Raw is the provider's data payload, stored for audit only.
	Raw []byte
}
