// Package audit is the append-only journal behind every deal. Any
// state-changing operation must write its entry inside the same bolt
// transaction as the state change; if the write fails the whole operation
// fails. Entries are never edited or removed.
package audit

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/misc"
)

// Entry categories partition the journal for downstream consumers. They
// carry no transition semantics.
const (
	CategoryTerms    = "terms"
	CategoryPayments = "payments"
	CategoryFiles    = "files"
	CategoryGeneral  = "general"
	CategoryOrd      = "ord"
)

type Entry struct {
	Id       string                 `json:"id"`
	DealId   string                 `json:"dealId"`
	UserId   string                 `json:"userId"`
	Action   string                 `json:"action"`
	Category string                 `json:"category"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Created  int64                  `json:"created"`
}

func ValidCategory(cat string) bool {
	switch cat {
	case CategoryTerms, CategoryPayments, CategoryFiles, CategoryGeneral, CategoryOrd:
		return true
	}
	return false
}

// Log appends an entry using the caller's R/W transaction. The entry id is
// taken off the shared index so entries sort in append order. Keys are
// dealId:seq so a single prefix scan yields one deal's history.
func Log(tx *bolt.Tx, cfg *config.Config, e *Entry) error {
	if !ValidCategory(e.Category) {
		e.Category = CategoryGeneral
	}

	id, err := misc.GetNextIndex(tx, cfg.Bucket.Audit)
	if err != nil {
		return err
	}

	e.Id = id
	if e.Created == 0 {
		e.Created = time.Now().Unix()
	}

	return misc.PutTxJson(tx, cfg.Bucket.Audit, key(e.DealId, id), e)
}

// ForDeal returns a deal's entries newest first. limit <= 0 means all.
func ForDeal(tx *bolt.Tx, cfg *config.Config, dealId string, limit int) ([]*Entry, error) {
	var out []*Entry

	c := misc.GetBucket(tx, cfg.Bucket.Audit).Cursor()
	prefix := []byte(dealId + ":")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var e Entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}

	// Newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func key(dealId, id string) string {
	// ids come off a shared monotonic index; left-pad so byte order
	// matches numeric order within one deal's prefix
	for len(id) < 12 {
		id = "0" + id
	}
	return dealId + ":" + id
}
