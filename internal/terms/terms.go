// Package terms maintains the versioned negotiation ledger: the ordered
// history of proposed terms per deal, acceptance tracking, and whose turn
// it is to respond. All writes happen inside the caller's transaction so
// a version insert, the deal status move, and the audit entry land
// atomically or not at all.
package terms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/misc"
)

// ProposeInitial writes version 1 for a deal that has no terms yet.
func ProposeInitial(tx *bolt.Tx, cfg *config.Config, d *common.Deal, authorId string, fields *common.TermsFields) (*common.TermsVersion, error) {
	if latest, err := Latest(tx, cfg, d.Id); err != nil {
		return nil, err
	} else if latest != nil {
		return nil, common.ErrIllegalOperation
	}

	if fields == nil {
		fields = &common.TermsFields{}
	}
	if fields.Price == 0 {
		fields.Price = d.Budget
	}

	tv := &common.TermsVersion{
		Id:        misc.PseudoUUID(),
		DealId:    d.Id,
		Version:   1,
		CreatedBy: authorId,
		Status:    common.TermsDraft,
		Fields:    fields,
		CreatedAt: time.Now().Unix(),
	}

	return tv, save(tx, cfg, tv)
}

// CounterOffer inserts version N+1. The actor must not be countering their
// own still-pending draft, must supply a rationale, and must be responding
// to the version they actually saw; a stale baseVersion is how the loser
// of a concurrent race finds out.
func CounterOffer(tx *bolt.Tx, cfg *config.Config, d *common.Deal, actorId string, baseVersion int, fields *common.TermsFields, rationale string) (*common.TermsVersion, error) {
	if rationale == "" {
		return nil, common.ErrRationale
	}

	latest, err := Latest(tx, cfg, d.Id)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, common.ErrIllegalOperation
	}

	if latest.Status == common.TermsDraft && latest.CreatedBy == actorId {
		// You cannot counter your own still-pending offer
		return nil, common.ErrUnauthorized
	}

	if baseVersion != latest.Version {
		return nil, common.ErrVersionConflict
	}

	if fields == nil {
		fields = &common.TermsFields{}
	}
	fields.Merge(latest.Fields)

	tv := &common.TermsVersion{
		Id:        misc.PseudoUUID(),
		DealId:    d.Id,
		Version:   latest.Version + 1,
		CreatedBy: actorId,
		Status:    common.TermsDraft,
		Rationale: rationale,
		Fields:    fields,
		CreatedAt: time.Now().Unix(),
	}

	return tv, save(tx, cfg, tv)
}

// AcceptLatest records the non-authoring party's endorsement and finalizes
// the latest version. The author's own endorsement is implicit.
func AcceptLatest(tx *bolt.Tx, cfg *config.Config, d *common.Deal, actorId string) (*common.TermsVersion, error) {
	latest, err := Latest(tx, cfg, d.Id)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, common.ErrIllegalOperation
	}

	if latest.CreatedBy == actorId {
		return nil, common.ErrUnauthorized
	}
	if latest.Status == common.TermsAccepted {
		return nil, common.ErrIllegalOperation
	}

	latest.Status = common.TermsAccepted
	latest.Acceptance = &common.TermsAcceptance{
		TermsId:    latest.Id,
		UserId:     actorId,
		AcceptedAt: time.Now().Unix(),
	}

	return latest, save(tx, cfg, latest)
}

// Latest returns the current (highest version) terms for a deal, or nil if
// none exist yet.
func Latest(tx *bolt.Tx, cfg *config.Config, dealId string) (*common.TermsVersion, error) {
	all, err := History(tx, cfg, dealId)
	if err != nil || len(all) == 0 {
		return nil, err
	}
	return all[len(all)-1], nil
}

// History returns every version for a deal in ascending version order.
func History(tx *bolt.Tx, cfg *config.Config, dealId string) ([]*common.TermsVersion, error) {
	var out []*common.TermsVersion

	c := misc.GetBucket(tx, cfg.Bucket.Terms).Cursor()
	prefix := []byte(dealId + ":")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var tv common.TermsVersion
		if err := json.Unmarshal(v, &tv); err != nil {
			return nil, err
		}
		out = append(out, &tv)
	}
	return out, nil
}

func save(tx *bolt.Tx, cfg *config.Config, tv *common.TermsVersion) error {
	return misc.PutTxJson(tx, cfg.Bucket.Terms, key(tv.DealId, tv.Version), tv)
}

// Zero-padded so byte order within a deal's prefix matches version order.
func key(dealId string, version int) string {
	return fmt.Sprintf("%s:%06d", dealId, version)
}
