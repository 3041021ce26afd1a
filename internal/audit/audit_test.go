package audit

import (
	"os"
	"testing"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/misc"
)

func testDB(t *testing.T) (*bolt.DB, *config.Config) {
	t.Helper()

	dir, err := os.MkdirTemp("", "pact-audit")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Bucket.Audit = "audit"

	db := misc.OpenDB(dir+"/", "test")
	if err := misc.InitBuckets(db, []string{"index", "audit"}); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})
	return db, cfg
}

func TestAppendAndReadBack(t *testing.T) {
	db, cfg := testDB(t)

	actions := []string{"created the deal proposal", "countered the terms", "accepted the terms"}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, a := range actions {
			e := &Entry{DealId: "d1", UserId: "u1", Action: a, Category: CategoryTerms}
			if err := Log(tx, cfg, e); err != nil {
				return err
			}
			if e.Id == "" || e.Created == 0 {
				t.Errorf("entry not stamped: %+v", e)
			}
		}
		// Another deal's entry must not leak into d1's history
		return Log(tx, cfg, &Entry{DealId: "d2", UserId: "u2", Action: "created the deal proposal", Category: CategoryTerms})
	}); err != nil {
		t.Fatal(err)
	}

	var entries []*Entry
	if err := db.View(func(tx *bolt.Tx) (err error) {
		entries, err = ForDeal(tx, cfg, "d1", 0)
		return
	}); err != nil {
		t.Fatal(err)
	}

	if len(entries) != len(actions) {
		t.Fatalf("entries = %d, want %d", len(entries), len(actions))
	}
	// Newest first
	for i, e := range entries {
		if want := actions[len(actions)-1-i]; e.Action != want {
			t.Errorf("entries[%d] = %q, want %q", i, e.Action, want)
		}
	}
}

func TestForDealLimit(t *testing.T) {
	db, cfg := testDB(t)

	if err := db.Update(func(tx *bolt.Tx) error {
		for i := 0; i < 10; i++ {
			if err := Log(tx, cfg, &Entry{DealId: "d1", UserId: "u1", Action: "step", Category: CategoryGeneral}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	var entries []*Entry
	db.View(func(tx *bolt.Tx) (err error) {
		entries, err = ForDeal(tx, cfg, "d1", 3)
		return
	})
	if len(entries) != 3 {
		t.Fatalf("limit ignored, got %d entries", len(entries))
	}
}

func TestUnknownCategoryFallsBackToGeneral(t *testing.T) {
	db, cfg := testDB(t)

	e := &Entry{DealId: "d1", UserId: "u1", Action: "did something", Category: "bogus"}
	if err := db.Update(func(tx *bolt.Tx) error {
		return Log(tx, cfg, e)
	}); err != nil {
		t.Fatal(err)
	}
	if e.Category != CategoryGeneral {
		t.Errorf("category = %q, want general", e.Category)
	}
}
