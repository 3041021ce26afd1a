package escrow

import (
	"os"
	"testing"

	"github.com/boltdb/bolt"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/misc"
)

func testDB(t *testing.T) (*bolt.DB, *config.Config) {
	t.Helper()

	dir, err := os.MkdirTemp("", "pact-escrow")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{CommissionRate: 0.10}
	cfg.Bucket.Escrow = "escrow"
	cfg.Bucket.Invoice = "invoice"

	db := misc.OpenDB(dir+"/", "test")
	if err := misc.InitBuckets(db, []string{"index", "escrow", "invoice"}); err != nil {
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
		Status:       common.DealWaitingPayment,
	}
}

func reconcile(t *testing.T, db *bolt.DB, cfg *config.Config, d *common.Deal) *Summary {
	t.Helper()
	var sum *Summary
	if err := db.View(func(tx *bolt.Tx) (err error) {
		sum, err = GetSummary(tx, cfg, d)
		return
	}); err != nil {
		t.Fatal(err)
	}
	if sum.Reserved+sum.Released+sum.Unallocated != sum.Total {
		t.Fatalf("reconciliation broken: reserved=%d released=%d unallocated=%d total=%d",
			sum.Reserved, sum.Released, sum.Unallocated, sum.Total)
	}
	return sum
}

func TestInvoiceAndMilestoneSplit(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal()

	var (
		inv *common.Invoice
		ms  []*common.EscrowMilestone
	)
	err := db.Update(func(tx *bolt.Tx) (err error) {
		if _, err = CreateInvoice(tx, cfg, d, 0, 0); err != common.ErrAmount {
			t.Errorf("zero amount err = %v", err)
		}

		if inv, err = CreateInvoice(tx, cfg, d, 45000, 0); err != nil {
			return
		}
		if inv.Status != common.InvoicePending || inv.InvoiceNumber == "" {
			t.Errorf("invoice = %+v", inv)
		}

		// A split that does not add up is rejected
		bad := []*common.EscrowMilestone{{Label: "half", Amount: 22500}}
		if _, _, err := PayInvoice(tx, cfg, d, inv.Id, bad); err != common.ErrAmount {
			t.Errorf("bad split err = %v", err)
		}

		split := []*common.EscrowMilestone{
			{Label: "first post", Amount: 22500},
			{Label: "second post", Amount: 22500},
		}
		if inv, ms, err = PayInvoice(tx, cfg, d, inv.Id, split); err != nil {
			return
		}
		return
	})
	if err != nil {
		t.Fatal(err)
	}

	if inv.Status != common.InvoicePaid || inv.PaidAt == 0 {
		t.Errorf("paid invoice = %+v", inv)
	}
	if len(ms) != 2 {
		t.Fatalf("milestones = %d, want 2", len(ms))
	}
	for _, m := range ms {
		if m.EscrowState != common.EscrowFundsReserved || m.Status != common.MilestoneReserved {
			t.Errorf("milestone = %+v", m)
		}
	}

	// Paying the same invoice again is illegal
	err = db.Update(func(tx *bolt.Tx) error {
		_, _, err := PayInvoice(tx, cfg, d, inv.Id, nil)
		return err
	})
	if err != common.ErrIllegalOperation {
		t.Errorf("double pay err = %v", err)
	}

	sum := reconcile(t, db, cfg, d)
	if sum.Reserved != 45000 || sum.Released != 0 || sum.Unallocated != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Commission != 4500 {
		t.Errorf("commission = %d, want 4500", sum.Commission)
	}
}

// Invoices can never hold more money than the agreed budget; the
// reconciliation view would otherwise report a negative unallocated pool.
func TestInvoiceCannotExceedBudget(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal() // budget 45000

	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := CreateInvoice(tx, cfg, d, 50000, 0); err != common.ErrAmount {
			t.Errorf("over-budget invoice err = %v, want ErrAmount", err)
		}

		// Two pending invoices that only together exceed the budget: the
		// second one is caught at payment time
		inv1, err := CreateInvoice(tx, cfg, d, 30000, 0)
		if err != nil {
			return err
		}
		inv2, err := CreateInvoice(tx, cfg, d, 30000, 0)
		if err != nil {
			return err
		}

		if _, _, err := PayInvoice(tx, cfg, d, inv1.Id, nil); err != nil {
			return err
		}
		if _, _, err := PayInvoice(tx, cfg, d, inv2.Id, nil); err != common.ErrIllegalOperation {
			t.Errorf("over-reserving pay err = %v, want ErrIllegalOperation", err)
		}

		// Held funds shrink the remaining headroom for new invoices
		if _, err := CreateInvoice(tx, cfg, d, 20000, 0); err != common.ErrAmount {
			t.Errorf("invoice past held funds err = %v, want ErrAmount", err)
		}
		if _, err := CreateInvoice(tx, cfg, d, 15000, 0); err != nil {
			t.Errorf("invoice within headroom err = %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	sum := reconcile(t, db, cfg, d)
	if sum.Reserved != 30000 || sum.Unallocated != 15000 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal()

	var ms []*common.EscrowMilestone
	if err := db.Update(func(tx *bolt.Tx) error {
		inv, err := CreateInvoice(tx, cfg, d, 45000, 0)
		if err != nil {
			return err
		}
		split := []*common.EscrowMilestone{
			{Label: "first", Amount: 22500},
			{Label: "second", Amount: 22500},
		}
		_, ms, err = PayInvoice(tx, cfg, d, inv.Id, split)
		return err
	}); err != nil {
		t.Fatal(err)
	}

	release := func(id string) (changed bool) {
		t.Helper()
		if err := db.Update(func(tx *bolt.Tx) (err error) {
			_, changed, err = Release(tx, cfg, d.Id, id)
			return
		}); err != nil {
			t.Fatal(err)
		}
		return
	}

	if !release(ms[0].Id) {
		t.Error("first release should change state")
	}
	sum := reconcile(t, db, cfg, d)
	if sum.Reserved != 22500 || sum.Released != 22500 {
		t.Errorf("after first release: %+v", sum)
	}

	// Releasing again is a no-op success, not an error, and pays nothing
	if release(ms[0].Id) {
		t.Error("second release must be a no-op")
	}
	sum = reconcile(t, db, cfg, d)
	if sum.Released != 22500 {
		t.Errorf("released moved on retry: %+v", sum)
	}

	if !release(ms[1].Id) {
		t.Error("second milestone release should change state")
	}
	sum = reconcile(t, db, cfg, d)
	if sum.Released != 45000 || sum.Reserved != 0 {
		t.Errorf("after both releases: %+v", sum)
	}
}

func TestReleaseUnreservedIsIllegal(t *testing.T) {
	db, cfg := testDB(t)
	d := testDeal()

	// A milestone parked before funds were reserved
	m := &common.EscrowMilestone{
		Id:          "m1",
		DealId:      d.Id,
		Amount:      1000,
		Status:      common.MilestoneReserved,
		EscrowState: common.EscrowInvoiceSent,
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		return misc.PutTxJson(tx, cfg.Bucket.Escrow, d.Id+":"+m.Id, m)
	}); err != nil {
		t.Fatal(err)
	}

	err := db.Update(func(tx *bolt.Tx) error {
		_, _, err := Release(tx, cfg, d.Id, m.Id)
		return err
	})
	if err != common.ErrIllegalOperation {
		t.Errorf("err = %v, want ErrIllegalOperation", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, _, err := Release(tx, cfg, d.Id, "nope")
		return err
	})
	if err != common.ErrNotFound {
		t.Errorf("missing milestone err = %v", err)
	}
}

func TestCommission(t *testing.T) {
	for _, tc := range []struct {
		total int64
		rate  float64
		want  int64
	}{
		{45000, 0.10, 4500},
		{999, 0.10, 100}, // rounds half away from zero
		{0, 0.10, 0},
		{45000, 0.15, 6750},
	} {
		if got := Commission(tc.total, tc.rate); got != tc.want {
			t.Errorf("Commission(%d, %v) = %d, want %d", tc.total, tc.rate, got, tc.want)
		}
	}
}
