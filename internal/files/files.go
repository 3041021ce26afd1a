// Package files records which attachments exist for a deal. The bytes
// live in external storage; the core only needs "does at least one file of
// category X exist" for gating, e.g. a draft cannot go to review with zero
// draft files.
package files

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/misc"
)

const (
	CategoryBrief = "brief"
	CategoryDraft = "draft"
	CategoryFinal = "final"
	CategoryLegal = "legal"
)

var ErrCategory = errors.New("unknown file category")

type File struct {
	Id       string `json:"id"`
	DealId   string `json:"dealId"`
	UserId   string `json:"userId"`
	Category string `json:"category"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	Created  int64  `json:"created"`
}

func ValidCategory(cat string) bool {
	switch cat {
	case CategoryBrief, CategoryDraft, CategoryFinal, CategoryLegal:
		return true
	}
	return false
}

func Register(tx *bolt.Tx, cfg *config.Config, f *File) error {
	if !ValidCategory(f.Category) {
		return ErrCategory
	}
	f.Id = misc.PseudoUUID()
	f.Created = time.Now().Unix()
	return misc.PutTxJson(tx, cfg.Bucket.File, f.DealId+":"+f.Id, f)
}

// HasCategory answers the gating question without touching file bytes.
func HasCategory(tx *bolt.Tx, cfg *config.Config, dealId, category string) bool {
	found := false
	forDeal(tx, cfg, dealId, func(f *File) {
		if f.Category == category {
			found = true
		}
	})
	return found
}

func ForDeal(tx *bolt.Tx, cfg *config.Config, dealId string) []*File {
	var out []*File
	forDeal(tx, cfg, dealId, func(f *File) { out = append(out, f) })
	return out
}

func forDeal(tx *bolt.Tx, cfg *config.Config, dealId string, fn func(*File)) {
	c := misc.GetBucket(tx, cfg.Bucket.File).Cursor()
	prefix := []byte(dealId + ":")
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var f File
		if json.Unmarshal(v, &f) == nil {
			fn(&f)
		}
	}
}
