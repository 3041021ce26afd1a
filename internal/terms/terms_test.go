package terms

import (
	"os"
	"sync"
	"testing"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/misc"
)

func testDB(t *testing.T) (*bolt.DB, *config.Config) {
	t.Helper()

	dir, err := os.MkdirTemp("", "pact-terms")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Bucket.Terms = "terms"

	db := misc.OpenDB(dir+"/", "test")
	if err := misc.InitBuckets(db, []string{"index", "terms"}); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})
	return db, cfg
}

func testDeal() *common.Deal {
	return &common.Deal{
		Id:           "1",
		AdvertiserId: "adv",
		CreatorId:    "cre",
		Budget:       45000,
		Status:       common.DealPending,
	}
}

func TestProposeAndCounterFlow(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal()

	err := db.Update(func(tx *bolt.Tx) error {
		v1, err := ProposeInitial(tx, cfg, d, "adv", nil)
		if err != nil {
			return err
		}
		if v1.Version != 1 || v1.Status != common.TermsDraft {
			t.Errorf("v1 = %+v", v1)
		}
		if v1.Fields.Price != 45000 {
			t.Errorf("initial price should default to the budget, got %d", v1.Fields.Price)
		}

		// Proposing twice is illegal
		if _, err := ProposeInitial(tx, cfg, d, "adv", nil); err != common.ErrIllegalOperation {
			t.Errorf("second propose err = %v", err)
		}

		// Countering without a rationale is a validation error
		if _, err := CounterOffer(tx, cfg, d, "cre", 1, nil, ""); err != common.ErrRationale {
			t.Errorf("no-rationale err = %v", err)
		}

		// The author cannot counter their own pending offer
		if _, err := CounterOffer(tx, cfg, d, "adv", 1, nil, "bump"); err != common.ErrUnauthorized {
			t.Errorf("self-counter err = %v", err)
		}

		v2, err := CounterOffer(tx, cfg, d, "cre", 1, &common.TermsFields{Notes: "need more time"}, "need more time")
		if err != nil {
			return err
		}
		if v2.Version != 2 || v2.CreatedBy != "cre" {
			t.Errorf("v2 = %+v", v2)
		}
		if v2.Fields.Price != 45000 {
			t.Error("unspecified counter fields must inherit")
		}

		// Countering against a stale base version conflicts
		if _, err := CounterOffer(tx, cfg, d, "adv", 1, nil, "stale"); err != common.ErrVersionConflict {
			t.Errorf("stale base err = %v", err)
		}

		// The author of v2 cannot accept their own version
		if _, err := AcceptLatest(tx, cfg, d, "cre"); err != common.ErrUnauthorized {
			t.Errorf("self-accept err = %v", err)
		}

		acc, err := AcceptLatest(tx, cfg, d, "adv")
		if err != nil {
			return err
		}
		if acc.Status != common.TermsAccepted || acc.Acceptance == nil || acc.Acceptance.UserId != "adv" {
			t.Errorf("accepted = %+v", acc)
		}

		// Accepting twice is illegal
		if _, err := AcceptLatest(tx, cfg, d, "adv"); err != common.ErrIllegalOperation {
			t.Errorf("double accept err = %v", err)
		}

		history, err := History(tx, cfg, d.Id)
		if err != nil {
			return err
		}
		if len(history) != 2 || history[0].Version != 1 || history[1].Version != 2 {
			t.Errorf("history versions wrong: %+v", history)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestConcurrentCounterOneWins(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal()

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := ProposeInitial(tx, cfg, d, "adv", nil)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	// An accepted v1 lets either party counter, which is the only way both
	// sides can race on the same base version
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := AcceptLatest(tx, cfg, d, "cre")
		return err
	}); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, actor := range []string{"adv", "cre"} {
		wg.Add(1)
		go func(actor string) {
			defer wg.Done()
			err := db.Update(func(tx *bolt.Tx) error {
				_, err := CounterOffer(tx, cfg, d, actor, 1, nil, "racing")
				return err
			})
			mu.Lock()
			errs = append(errs, err)
			mu.Unlock()
		}(actor)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch err {
		case nil:
			wins++
		case common.ErrVersionConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("wins = %d conflicts = %d, want exactly one of each", wins, conflicts)
	}

	// The loser re-reads and produces version 3
	err := db.Update(func(tx *bolt.Tx) error {
		latest, err := Latest(tx, cfg, d.Id)
		if err != nil {
			return err
		}
		if latest.Version != 2 {
			t.Fatalf("latest after race = %d, want 2", latest.Version)
		}

		other := "adv"
		if latest.CreatedBy == "adv" {
			other = "cre"
		}
		v3, err := CounterOffer(tx, cfg, d, other, latest.Version, nil, "retry after conflict")
		if err != nil {
			return err
		}
		if v3.Version != 3 {
			t.Fatalf("retry version = %d, want 3", v3.Version)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
