// Package escrow tracks the monetary lifecycle of a deal: invoices,
// milestone fund reservation, release, and commission accounting. It is
// triggered by, but independent of, the negotiation state. Writes run in
// the caller's transaction; milestone state checks happen in-tx so
// concurrent release attempts can never double-pay.
package escrow

import (
	"bytes"
	"encoding/json"
	"math"
	"time"

	"github.com/boltdb/bolt"
	"github.com/google/uuid"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/misc"
)

// Summary is the reconciliation view of a deal's money. At all times
// Reserved + Released + Unallocated == Total.
type Summary struct {
	DealId      string `json:"dealId"`
	Total       int64  `json:"total"`
	Reserved    int64  `json:"reserved"`
	Released    int64  `json:"released"`
	Unallocated int64  `json:"unallocated"`

	// Platform fee on the agreed total. Informational accounting only,
	// not a separate movable fund.
	Commission int64 `json:"commission"`

	Milestones []*common.EscrowMilestone `json:"milestones,omitempty"`
	Invoices   []*common.Invoice         `json:"invoices,omitempty"`
}

// CreateInvoice issues a pending invoice for a creator's payment request.
// The amount may never push the money held past the agreed budget.
func CreateInvoice(tx *bolt.Tx, cfg *config.Config, d *common.Deal, amount, dueDate int64) (*common.Invoice, error) {
	if amount <= 0 {
		return nil, common.ErrAmount
	}

	held, err := heldTotal(tx, cfg, d.Id)
	if err != nil {
		return nil, err
	}
	if amount > d.Budget-held {
		return nil, common.ErrAmount
	}

	inv := &common.Invoice{
		Id:            misc.PseudoUUID(),
		DealId:        d.Id,
		InvoiceNumber: uuid.NewString(),
		Amount:        amount,
		Status:        common.InvoicePending,
		DueDate:       dueDate,
		Created:       time.Now().Unix(),
	}

	return inv, misc.PutTxJson(tx, cfg.Bucket.Invoice, key(d.Id, inv.Id), inv)
}

// PayInvoice marks a pending invoice paid and reserves funds by creating
// one milestone per requested split (one milestone covering the full
// amount if no split is given). Split amounts must add up to the invoice.
func PayInvoice(tx *bolt.Tx, cfg *config.Config, d *common.Deal, invoiceId string, split []*common.EscrowMilestone) (*common.Invoice, []*common.EscrowMilestone, error) {
	inv, err := GetInvoice(tx, cfg, d.Id, invoiceId)
	if err != nil {
		return nil, nil, err
	}
	if inv.Status != common.InvoicePending {
		return nil, nil, common.ErrIllegalOperation
	}

	// Guards against two pending invoices together over-reserving
	held, err := heldTotal(tx, cfg, d.Id)
	if err != nil {
		return nil, nil, err
	}
	if inv.Amount > d.Budget-held {
		return nil, nil, common.ErrIllegalOperation
	}

	if len(split) == 0 {
		split = []*common.EscrowMilestone{{Label: "Full payment", Amount: inv.Amount}}
	}

	var total int64
	for _, m := range split {
		if m.Amount <= 0 {
			return nil, nil, common.ErrAmount
		}
		total += m.Amount
	}
	if total != inv.Amount {
		return nil, nil, common.ErrAmount
	}

	now := time.Now().Unix()
	inv.Status = common.InvoicePaid
	inv.PaidAt = now
	if err := misc.PutTxJson(tx, cfg.Bucket.Invoice, key(d.Id, inv.Id), inv); err != nil {
		return nil, nil, err
	}

	for _, m := range split {
		m.Id = misc.PseudoUUID()
		m.DealId = d.Id
		m.Status = common.MilestoneReserved
		m.EscrowState = common.EscrowFundsReserved
		m.Created = now
		if err := save(tx, cfg, m); err != nil {
			return nil, nil, err
		}
	}

	return inv, split, nil
}

// Release pays out a milestone. Releasing an already released milestone is
// a no-op success so retries are safe; releasing a milestone whose funds
// were never reserved is illegal.
func Release(tx *bolt.Tx, cfg *config.Config, dealId, milestoneId string) (*common.EscrowMilestone, bool, error) {
	m, err := GetMilestone(tx, cfg, dealId, milestoneId)
	if err != nil {
		return nil, false, err
	}

	if m.EscrowState == common.EscrowPaidOut {
		return m, false, nil
	}
	if !m.Reserved() {
		return nil, false, common.ErrIllegalOperation
	}

	m.Status = common.MilestoneReleased
	m.EscrowState = common.EscrowPaidOut
	m.ReleasedAt = time.Now().Unix()

	return m, true, save(tx, cfg, m)
}

// Advance moves every milestone sitting in `from` into `to`. Used by the
// lifecycle manager to walk reserved funds through the active period and
// payout-ready states as the deal progresses.
func Advance(tx *bolt.Tx, cfg *config.Config, dealId, from, to, status string) error {
	ms, err := Milestones(tx, cfg, dealId)
	if err != nil {
		return err
	}
	for _, m := range ms {
		if m.EscrowState != from {
			continue
		}
		m.EscrowState = to
		if status != "" {
			m.Status = status
		}
		if err := save(tx, cfg, m); err != nil {
			return err
		}
	}
	return nil
}

// GetSummary recomputes the reconciliation view from stored milestones so
// the invariant holds by construction.
func GetSummary(tx *bolt.Tx, cfg *config.Config, d *common.Deal) (*Summary, error) {
	ms, err := Milestones(tx, cfg, d.Id)
	if err != nil {
		return nil, err
	}
	invs, err := Invoices(tx, cfg, d.Id)
	if err != nil {
		return nil, err
	}

	s := &Summary{
		DealId:     d.Id,
		Total:      d.Budget,
		Commission: Commission(d.Budget, cfg.CommissionRate),
		Milestones: ms,
		Invoices:   invs,
	}

	for _, m := range ms {
		if m.EscrowState == common.EscrowPaidOut {
			s.Released += m.Amount
		} else if m.Reserved() {
			s.Reserved += m.Amount
		}
	}
	s.Unallocated = s.Total - s.Reserved - s.Released

	return s, nil
}

// Commission is the platform's fixed-percentage cut of the agreed total,
// computed at final settlement.
func Commission(total int64, rate float64) int64 {
	return int64(math.Round(float64(total) * rate))
}

// heldTotal is the money already committed to milestones, reserved or paid.
func heldTotal(tx *bolt.Tx, cfg *config.Config, dealId string) (int64, error) {
	ms, err := Milestones(tx, cfg, dealId)
	if err != nil {
		return 0, err
	}
	var held int64
	for _, m := range ms {
		held += m.Amount
	}
	return held, nil
}

func GetMilestone(tx *bolt.Tx, cfg *config.Config, dealId, id string) (*common.EscrowMilestone, error) {
	var m common.EscrowMilestone
	v := misc.GetBucket(tx, cfg.Bucket.Escrow).Get([]byte(key(dealId, id)))
	if len(v) == 0 {
		return nil, common.ErrNotFound
	}
	if err := json.Unmarshal(v, &m); err != nil {
		return nil, common.ErrUnmarshal
	}
	return &m, nil
}

func GetInvoice(tx *bolt.Tx, cfg *config.Config, dealId, id string) (*common.Invoice, error) {
	var inv common.Invoice
	v := misc.GetBucket(tx, cfg.Bucket.Invoice).Get([]byte(key(dealId, id)))
	if len(v) == 0 {
		return nil, common.ErrNotFound
	}
	if err := json.Unmarshal(v, &inv); err != nil {
		return nil, common.ErrUnmarshal
	}
	return &inv, nil
}

func Milestones(tx *bolt.Tx, cfg *config.Config, dealId string) ([]*common.EscrowMilestone, error) {
	var out []*common.EscrowMilestone
	err := scan(tx, cfg.Bucket.Escrow, dealId, func(v []byte) error {
		var m common.EscrowMilestone
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		out = append(out, &m)
		return nil
	})
	return out, err
}

func Invoices(tx *bolt.Tx, cfg *config.Config, dealId string) ([]*common.Invoice, error) {
	var out []*common.Invoice
	err := scan(tx, cfg.Bucket.Invoice, dealId, func(v []byte) error {
		var inv common.Invoice
		if err := json.Unmarshal(v, &inv); err != nil {
			return err
		}
		out = append(out, &inv)
		return nil
	})
	return out, err
}

func scan(tx *bolt.Tx, bucket, dealId string, fn func(v []byte) error) error {
	c := misc.GetBucket(tx, bucket).Cursor()
	prefix := []byte(dealId + ":")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

func save(tx *bolt.Tx, cfg *config.Config, m *common.EscrowMilestone) error {
	return misc.PutTxJson(tx, cfg.Bucket.Escrow, key(m.DealId, m.Id), m)
}

func key(dealId, id string) string {
	return dealId + ":" + id
}
