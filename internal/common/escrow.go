package common

// Milestone status, the coarse view consumed by dashboards
const (
	MilestoneReserved   = "reserved"
	MilestoneInProgress = "in_progress"
	MilestoneReview     = "review"
	MilestoneReleased   = "released"
)

// Escrow states, the fine-grained monetary lifecycle. Moves strictly
// forward; PAID_OUT is final.
const (
	EscrowWaitingInvoice = "WAITING_INVOICE"
	EscrowInvoiceSent    = "INVOICE_SENT"
	EscrowFundsReserved  = "FUNDS_RESERVED"
	EscrowActivePeriod   = "ACTIVE_PERIOD"
	EscrowPayoutReady    = "PAYOUT_READY"
	EscrowPaidOut        = "PAID_OUT"
)

// EscrowMilestone is one independently releasable slice of the total
// payment. Created when an invoice is paid and funds are reserved.
type EscrowMilestone struct {
	Id          string `json:"id"`
	DealId      string `json:"dealId"`
	Label       string `json:"label,omitempty"`
	Amount      int64  `json:"amount"`
	Status      string `json:"status"`
	EscrowState string `json:"escrowState"`
	Created     int64  `json:"created,omitempty"`
	ReleasedAt  int64  `json:"releasedAt,omitempty"`
}

// Reserved reports whether funds for this milestone are actually being
// held; releasing an unreserved milestone is illegal.
func (m *EscrowMilestone) Reserved() bool {
	switch m.EscrowState {
	case EscrowFundsReserved, EscrowActivePeriod, EscrowPayoutReady:
		return true
	}
	return false
}

const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
)

// Invoice bridges a creator requesting payment and an advertiser
// reserving the funds.
type Invoice struct {
	Id            string `json:"id"`
	DealId        string `json:"dealId"`
	InvoiceNumber string `json:"invoiceNumber"`
	Amount        int64  `json:"amount"`
	Status        string `json:"status"`
	DueDate       int64  `json:"dueDate,omitempty"`
	PaidAt        int64  `json:"paidAt,omitempty"`
	Created       int64  `json:"created,omitempty"`
}
