package server

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/internal/audit"
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/internal/escrow"
	"github.com/brandpact/pact/internal/feed"
	"github.com/brandpact/pact/internal/files"
	"github.com/brandpact/pact/internal/terms"
	"github.com/brandpact/pact/misc"
)

///////// Deal lifecycle /////////

type proposalReq struct {
	CounterpartyId  string              `json:"counterpartyId"`
	Title           string              `json:"title"`
	Description     string              `json:"description,omitempty"`
	Budget          int64               `json:"budget"`
	Deadline        int64               `json:"deadline,omitempty"`
	EscrowRequired  bool                `json:"escrowRequired,omitempty"`
	MarkingRequired bool                `json:"markingRequired,omitempty"`
	Fields          *common.TermsFields `json:"fields,omitempty"`
}

func createProposal(s *Server) gin.HandlerFunc {
	// Either side can open a deal; the body names the other party. The
	// deal and Terms v1 land in the same transaction.
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		var req proposalReq
		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		if req.Title == "" || req.Budget <= 0 || req.CounterpartyId == "" {
			c.JSON(400, misc.StatusErrCode("validation", "title, budget and counterpartyId are required"))
			return
		}

		other := s.auth.GetUser(req.CounterpartyId)
		if other == nil || other.Type == u.Type {
			c.JSON(400, misc.StatusErrCode("validation", "counterparty must be an existing user on the other side"))
			return
		}

		d := &common.Deal{
			Title:           req.Title,
			Description:     req.Description,
			Budget:          req.Budget,
			Deadline:        req.Deadline,
			Status:          common.DealPending,
			EscrowRequired:  req.EscrowRequired,
			MarkingRequired: req.MarkingRequired,
			Created:         time.Now().Unix(),
		}
		if u.IsAdvertiser() {
			d.AdvertiserId, d.CreatorId = u.ID, other.ID
		} else {
			d.AdvertiserId, d.CreatorId = other.ID, u.ID
		}

		var entry *audit.Entry
		if err := s.db.Update(func(tx *bolt.Tx) (err error) {
			if d.Id, err = misc.GetNextIndex(tx, s.Cfg.Bucket.Deal); err != nil {
				return err
			}

			tv, err := terms.ProposeInitial(tx, s.Cfg, d, u.ID, req.Fields)
			if err != nil {
				return err
			}

			entry = &audit.Entry{
				DealId:   d.Id,
				UserId:   u.ID,
				Action:   "created the deal proposal",
				Category: audit.CategoryTerms,
				Metadata: map[string]interface{}{"version": tv.Version, "budget": d.Budget},
			}
			if err = audit.Log(tx, s.Cfg, entry); err != nil {
				return err
			}

			return saveDeal(tx, s, d)
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		go s.notifyTransition(d, u, &sideEffects{
			event:   feed.EvProposalCreated,
			message: common.MsgProposalSent,
			payload: d,
		})

		c.JSON(200, &CommandResult{Deal: d, Audit: entry})
	}
}

type counterReq struct {
	BaseVersion int                 `json:"baseVersion"`
	Rationale   string              `json:"rationale"`
	Fields      *common.TermsFields `json:"fields,omitempty"`
}

func submitCounterOffer(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req counterReq
		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if !d.Negotiable() {
				return nil, nil, common.ErrInvalidTransition
			}

			tv, err := terms.CounterOffer(tx, s.Cfg, d, u.ID, req.BaseVersion, req.Fields, req.Rationale)
			if err != nil {
				return nil, nil, err
			}

			if err = d.Transition(common.DealNeedsChanges); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "countered the terms",
				Category: audit.CategoryTerms,
				Metadata: map[string]interface{}{"version": tv.Version, "rationale": req.Rationale},
			}
			return entry, &sideEffects{feed.EvCounterOffer, common.MsgCounterOffer, tv}, nil
		})
	}
}

func acceptTerms(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealPending && d.Status != common.DealNeedsChanges {
				return nil, nil, common.ErrInvalidTransition
			}

			tv, err := terms.AcceptLatest(tx, s.Cfg, d, u.ID)
			if err != nil {
				return nil, nil, err
			}

			// Accepted terms are the agreed budget from here on
			if tv.Fields != nil && tv.Fields.Price > 0 {
				d.Budget = tv.Fields.Price
			}
			if tv.Fields != nil && tv.Fields.Deadline > 0 {
				d.Deadline = tv.Fields.Deadline
			}

			// Destination depends on where the money is: escrow already
			// holding funds resumes the work phase, an escrow-backed deal
			// waits for its invoice, anything else goes straight to
			// briefing.
			sum, err := escrow.GetSummary(tx, s.Cfg, d)
			if err != nil {
				return nil, nil, err
			}

			next := common.DealBriefing
			if sum.Reserved > 0 || sum.Released > 0 {
				next = common.DealInProgress
			} else if d.EscrowRequired {
				next = common.DealAccepted
			}

			if err = d.Transition(next); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "accepted the terms",
				Category: audit.CategoryTerms,
				Metadata: map[string]interface{}{"version": tv.Version},
			}
			return entry, &sideEffects{feed.EvTermsAccepted, common.MsgTermsAccepted, tv}, nil
		})
	}
}

type rejectReq struct {
	Reason string `json:"reason,omitempty"`
}

func rejectDeal(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectReq
		misc.BindJSON(c, &req) // reason is optional, an empty body is fine

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status == common.DealPending {
				// A fresh proposal is the responder's to reject; once the
				// back-and-forth has started either party may walk away
				latest, err := terms.Latest(tx, s.Cfg, d.Id)
				if err != nil {
					return nil, nil, err
				}
				if latest != nil && latest.CreatedBy == u.ID {
					return nil, nil, common.ErrUnauthorized
				}
			}

			if err := d.Transition(common.DealRejected); err != nil {
				return nil, nil, err
			}
			// The latest terms version stays draft forever
			d.RejectionReason = req.Reason
			d.RejectedAt = time.Now().Unix()

			entry := &audit.Entry{
				Action:   "rejected the deal",
				Category: audit.CategoryGeneral,
				Metadata: map[string]interface{}{"reason": req.Reason},
			}
			return entry, &sideEffects{feed.EvDealRejected, common.MsgDealRejected, nil}, nil
		})
	}
}

func openDispute(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectReq
		misc.BindJSON(c, &req)

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if err := d.Transition(common.DealDisputed); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "opened a dispute",
				Category: audit.CategoryGeneral,
				Metadata: map[string]interface{}{"reason": req.Reason},
			}
			return entry, &sideEffects{feed.EvDisputeOpened, common.MsgDisputeOpened, nil}, nil
		})
	}
}

func startWork(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealBriefing {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.CreatorId {
				return nil, nil, common.ErrUnauthorized
			}

			if err := d.Transition(common.DealInProgress); err != nil {
				return nil, nil, err
			}

			// Reserved funds enter their active period alongside the work
			if err := escrow.Advance(tx, s.Cfg, d.Id, common.EscrowFundsReserved,
				common.EscrowActivePeriod, common.MilestoneInProgress); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{Action: "started work", Category: audit.CategoryGeneral}
			return entry, &sideEffects{feed.EvWorkStarted, common.MsgWorkStarted, nil}, nil
		})
	}
}

func markDraftSubmitted(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealInProgress {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.CreatorId {
				return nil, nil, common.ErrUnauthorized
			}

			// Cannot submit for review with zero draft files when the
			// advertiser requires marking
			if d.MarkingRequired && !files.HasCategory(tx, s.Cfg, d.Id, files.CategoryDraft) {
				return nil, nil, common.ErrIllegalOperation
			}

			if err := d.Transition(common.DealReview); err != nil {
				return nil, nil, err
			}

			if err := escrow.Advance(tx, s.Cfg, d.Id, common.EscrowActivePeriod,
				common.EscrowPayoutReady, common.MilestoneReview); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{Action: "submitted a draft for review", Category: audit.CategoryGeneral}
			return entry, &sideEffects{feed.EvDraftSubmitted, common.MsgDraftSubmitted, nil}, nil
		})
	}
}

func markDraftAccepted(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealReview {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.AdvertiserId {
				return nil, nil, common.ErrUnauthorized
			}

			// If unreleased milestones remain the deal loops into its next
			// work cycle; otherwise it completes.
			ms, err := escrow.Milestones(tx, s.Cfg, d.Id)
			if err != nil {
				return nil, nil, err
			}

			remaining := 0
			for _, m := range ms {
				if m.EscrowState != common.EscrowPaidOut {
					remaining++
				}
			}

			next := common.DealCompleted
			msg := common.MsgDraftAccepted
			if remaining > 0 {
				next = common.DealInProgress
				msg = common.MsgNextCycle
				if err := escrow.Advance(tx, s.Cfg, d.Id, common.EscrowPayoutReady,
					common.EscrowActivePeriod, common.MilestoneInProgress); err != nil {
					return nil, nil, err
				}
			}

			if err := d.Transition(next); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "accepted the draft",
				Category: audit.CategoryGeneral,
				Metadata: map[string]interface{}{"remainingMilestones": remaining},
			}
			return entry, &sideEffects{feed.EvDraftAccepted, msg, nil}, nil
		})
	}
}

func requestChanges(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req rejectReq
		misc.BindJSON(c, &req)

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealReview {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.AdvertiserId {
				return nil, nil, common.ErrUnauthorized
			}

			if err := d.Transition(common.DealInProgress); err != nil {
				return nil, nil, err
			}
			if err := escrow.Advance(tx, s.Cfg, d.Id, common.EscrowPayoutReady,
				common.EscrowActivePeriod, common.MilestoneInProgress); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "requested changes to the draft",
				Category: audit.CategoryGeneral,
				Metadata: map[string]interface{}{"reason": req.Reason},
			}
			return entry, &sideEffects{feed.EvChangesRequested, common.MsgChangesRequested, nil}, nil
		})
	}
}

///////// Read-only queries /////////

// DealState is the full read model for one deal, including whose turn it
// is, derived entirely from stored data.
type DealState struct {
	Deal        *common.Deal         `json:"deal"`
	LatestTerms *common.TermsVersion `json:"latestTerms,omitempty"`
	YourTurn    bool                 `json:"yourTurn"`
}

func getDeal(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		var state DealState
		if err := s.db.View(func(tx *bolt.Tx) (err error) {
			d := getDealTx(tx, s, c.Param("dealId"))
			if d == nil {
				return common.ErrNotFound
			}
			if !d.IsParty(u.ID) {
				return common.ErrUnauthorized
			}

			latest, err := terms.Latest(tx, s.Cfg, d.Id)
			if err != nil {
				return err
			}

			state = DealState{
				Deal:        d,
				LatestTerms: latest,
				YourTurn:    common.HasTurn(d, latest, u.ID),
			}
			return nil
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		c.JSON(200, &state)
	}
}

func getDeals(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		deals := []*common.Deal{}
		s.db.View(func(tx *bolt.Tx) error {
			return tx.Bucket([]byte(s.Cfg.Bucket.Deal)).ForEach(func(k, v []byte) error {
				var d common.Deal
				if json.Unmarshal(v, &d) == nil && d.IsParty(u.ID) {
					deals = append(deals, &d)
				}
				return nil
			})
		})

		c.JSON(200, deals)
	}
}

func getTermsHistory(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		var history []*common.TermsVersion
		if err := s.db.View(func(tx *bolt.Tx) (err error) {
			d := getDealTx(tx, s, c.Param("dealId"))
			if d == nil {
				return common.ErrNotFound
			}
			if !d.IsParty(u.ID) {
				return common.ErrUnauthorized
			}
			history, err = terms.History(tx, s.Cfg, d.Id)
			return
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		c.JSON(200, history)
	}
}

func getAuditLog(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		limit, _ := strconv.Atoi(c.Query("limit"))

		var entries []*audit.Entry
		if err := s.db.View(func(tx *bolt.Tx) (err error) {
			d := getDealTx(tx, s, c.Param("dealId"))
			if d == nil {
				return common.ErrNotFound
			}
			if !d.IsParty(u.ID) {
				return common.ErrUnauthorized
			}
			entries, err = audit.ForDeal(tx, s.Cfg, d.Id, limit)
			return
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		c.JSON(200, entries)
	}
}
