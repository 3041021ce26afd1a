package common

// A Deal is the aggregate for one negotiated engagement between an
// advertiser and a creator. Do NOT mutate a deal outside of a server
// command; status only ever moves through the transition table below.
type Deal struct {
	Id           string `json:"id"`
	AdvertiserId string `json:"advertiserId"`
	CreatorId    string `json:"creatorId"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	// Total agreed budget in minor currency units (cents)
	Budget int64 `json:"budget"`

	Status string `json:"status"`

	Deadline int64 `json:"deadline,omitempty"` // Unix, optional

	// Does acceptance park the deal in "accepted" until funds clear escrow,
	// or go straight into the work phase?
	EscrowRequired bool `json:"escrowRequired,omitempty"`

	// Advertiser requires an approved draft submission before publishing
	MarkingRequired bool `json:"markingRequired,omitempty"`

	RejectionReason string `json:"rejectionReason,omitempty"`
	RejectedAt      int64  `json:"rejectedAt,omitempty"`

	Created int64 `json:"created,omitempty"`
	Updated int64 `json:"updated,omitempty"`
}

const (
	DealPending        = "pending"
	DealNeedsChanges   = "needs_changes"
	DealAccepted       = "accepted"
	DealRejected       = "rejected"
	DealInvoiceNeeded  = "invoice_needed"
	DealWaitingPayment = "waiting_payment"
	DealBriefing       = "briefing"
	DealInProgress     = "in_progress"
	DealReview         = "review"
	DealCompleted      = "completed"
	DealDisputed       = "disputed"
)

// transitions is the single source of truth for which status moves are
// legal. Dispute is handled separately since it is reachable from every
// non-terminal state.
var transitions = map[string][]string{
	DealPending:        {DealAccepted, DealBriefing, DealNeedsChanges, DealRejected},
	DealNeedsChanges:   {DealAccepted, DealBriefing, DealInProgress, DealNeedsChanges, DealRejected},
	DealAccepted:       {DealInvoiceNeeded},
	DealInvoiceNeeded:  {DealWaitingPayment},
	DealWaitingPayment: {DealBriefing},
	DealBriefing:       {DealInProgress, DealNeedsChanges},
	DealInProgress:     {DealReview, DealNeedsChanges},
	DealReview:         {DealCompleted, DealInProgress},
	DealRejected:       {},
	DealCompleted:      {},
	DealDisputed:       {},
}

func IsValidStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

func IsTerminalStatus(status string) bool {
	return status == DealRejected || status == DealCompleted
}

// CanTransition reports whether moving a deal from one status to another
// is a legal walk over the transition graph.
func CanTransition(from, to string) bool {
	if IsTerminalStatus(from) {
		return false
	}
	if to == DealDisputed {
		// Either party can open a dispute at any point before the deal
		// ends; disputes are a first-class transition, not a cancel flag
		return from != DealDisputed
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Transition applies a status move or returns ErrInvalidTransition leaving
// the deal untouched.
func (d *Deal) Transition(to string) error {
	if !CanTransition(d.Status, to) {
		return ErrInvalidTransition
	}
	d.Status = to
	return nil
}

func (d *Deal) IsTerminal() bool {
	return IsTerminalStatus(d.Status)
}

// IsParty reports whether the given user is one of the two sides of this
// deal. Every guard starts here.
func (d *Deal) IsParty(userId string) bool {
	return userId != "" && (userId == d.AdvertiserId || userId == d.CreatorId)
}

// Other returns the counterparty for a given party id.
func (d *Deal) Other(userId string) string {
	if userId == d.AdvertiserId {
		return d.CreatorId
	}
	return d.AdvertiserId
}

// Negotiable reports whether a counter offer may be submitted right now.
// Renegotiation is allowed mid-flight from the work phase.
func (d *Deal) Negotiable() bool {
	switch d.Status {
	case DealPending, DealNeedsChanges, DealBriefing, DealInProgress:
		return true
	}
	return false
}
