package charger // Stripe behind the escrow controller

import (
	"errors"

	"github.com/stripe/stripe-go"
	"github.com/stripe/stripe-go/charge"
	"github.com/stripe/stripe-go/refund"
)

var (
	ErrAmount   = errors.New("Attempting to charge zero dollar value")
	ErrCustomer = errors.New("Unrecognized customer")
)

// ReserveFunds charges the advertiser's card for an invoice. The charge is
// what backs a FUNDS_RESERVED milestone; the platform holds it until
// release. Amounts are minor currency units, which is also what stripe
// expects.
func ReserveFunds(custID, dealID string, amount int64) (string, error) {
	if amount <= 0 {
		return "", ErrAmount
	}
	if custID == "" {
		return "", ErrCustomer
	}

	params := &stripe.ChargeParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(string(stripe.CurrencyUSD)),
		Customer: stripe.String(custID),
	}
	params.AddMetadata("dealID", dealID)

	ch, err := charge.New(params)
	if err != nil {
		return "", err
	}
	return ch.ID, nil
}

// RefundFunds undoes a reservation, e.g. when a disputed deal is unwound
// by support tooling.
func RefundFunds(chargeID string) error {
	if chargeID == "" {
		return ErrCustomer
	}
	_, err := refund.New(&stripe.RefundParams{Charge: stripe.String(chargeID)})
	return err
}
