package common

const (
	TermsDraft    = "draft"
	TermsAccepted = "accepted"
)

// Placement types a deal's terms can be written against
const (
	PlacementVideo   = "video"
	PlacementPost    = "post"
	PlacementPodcast = "podcast"
)

// TermsFields is the typed schema behind one terms version. A counter
// offer only has to fill in the fields it changes; the rest inherit from
// the prior version via Merge.
type TermsFields struct {
	Price     int64  `json:"price,omitempty"`    // Minor currency units
	Deadline  int64  `json:"deadline,omitempty"` // Unix
	Placement string `json:"placement,omitempty"`
	Criteria  string `json:"criteria,omitempty"` // Acceptance criteria
	Notes     string `json:"notes,omitempty"`    // Free-text rationale / extras
}

// Merge fills this version's unset fields from the previous version so a
// counter offer is always a complete snapshot.
func (f *TermsFields) Merge(prev *TermsFields) {
	if prev == nil {
		return
	}
	if f.Price == 0 {
		f.Price = prev.Price
	}
	if f.Deadline == 0 {
		f.Deadline = prev.Deadline
	}
	if f.Placement == "" {
		f.Placement = prev.Placement
	}
	if f.Criteria == "" {
		f.Criteria = prev.Criteria
	}
	if f.Notes == "" {
		f.Notes = prev.Notes
	}
}

// Diff returns the names of fields whose values differ between two
// snapshots. Purely for "what changed" summaries, no transition semantics.
func (f *TermsFields) Diff(other *TermsFields) []string {
	if other == nil {
		other = &TermsFields{}
	}
	var changed []string
	if f.Price != other.Price {
		changed = append(changed, "price")
	}
	if f.Deadline != other.Deadline {
		changed = append(changed, "deadline")
	}
	if f.Placement != other.Placement {
		changed = append(changed, "placement")
	}
	if f.Criteria != other.Criteria {
		changed = append(changed, "criteria")
	}
	if f.Notes != other.Notes {
		changed = append(changed, "notes")
	}
	return changed
}

// TermsVersion is one dated snapshot of the proposed deal parameters.
// Versions form a linear, strictly increasing history per deal.
type TermsVersion struct {
	Id        string       `json:"id"`
	DealId    string       `json:"dealId"`
	Version   int          `json:"version"`
	CreatedBy string       `json:"createdBy"`
	Status    string       `json:"status"` // draft | accepted
	Rationale string       `json:"rationale,omitempty"`
	Fields    *TermsFields `json:"fields"`
	CreatedAt int64        `json:"createdAt"`

	// Set once the non-authoring party endorses this version. The author's
	// own endorsement is implicit.
	Acceptance *TermsAcceptance `json:"acceptance,omitempty"`
}

type TermsAcceptance struct {
	TermsId    string `json:"termsId"`
	UserId     string `json:"userId"`
	AcceptedAt int64  `json:"acceptedAt"`
}

// HasTurn reports whether the given party may respond to the latest terms
// version right now. Derived purely from stored data so two clients
// observing the same deal concurrently agree.
func HasTurn(d *Deal, latest *TermsVersion, userId string) bool {
	if d == nil || latest == nil || !d.IsParty(userId) {
		return false
	}
	if d.Status != DealPending && d.Status != DealNeedsChanges {
		return false
	}
	return latest.CreatedBy != userId
}
