// Package feed is the in-process event stream collaborators (chat,
// notifications, dashboards) subscribe to. Events are emitted after a
// transition commits, never inside its transaction, and delivery is
// best-effort: a slow subscriber drops events rather than blocking the
// core.
package feed

import (
	"sync"
)

type Event struct {
	DealId  string      `json:"dealId"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Event types, one per committed transition
const (
	EvProposalCreated  = "proposal_created"
	EvCounterOffer     = "counter_offer"
	EvTermsAccepted    = "terms_accepted"
	EvDealRejected     = "deal_rejected"
	EvInvoiceIssued    = "invoice_issued"
	EvFundsReserved    = "funds_reserved"
	EvWorkStarted      = "work_started"
	EvDraftSubmitted   = "draft_submitted"
	EvDraftAccepted    = "draft_accepted"
	EvChangesRequested = "changes_requested"
	EvMilestonePaid    = "milestone_released"
	EvDisputeOpened    = "dispute_opened"
	EvFileRegistered   = "file_registered"
)

type Sub struct {
	C  chan *Event
	id int
}

type Feed struct {
	mu   sync.RWMutex
	subs map[int]*Sub
	next int
}

func New() *Feed {
	return &Feed{subs: make(map[int]*Sub)}
}

// Subscribe returns a buffered subscription. Callers must drain Sub.C or
// accept dropped events.
func (f *Feed) Subscribe() *Sub {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := &Sub{C: make(chan *Event, 64), id: f.next}
	f.subs[s.id] = s
	f.next++
	return s
}

func (f *Feed) Unsubscribe(s *Sub) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.subs[s.id]; ok {
		delete(f.subs, s.id)
		close(s.C)
	}
}

// Emit fans the event out without ever blocking the caller.
func (f *Feed) Emit(dealId, eventType string, payload interface{}) {
	ev := &Event{DealId: dealId, Type: eventType, Payload: payload}

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, s := range f.subs {
		select {
		case s.C <- ev:
		default:
			// Subscriber fell behind; drop rather than stall the core
		}
	}
}
