package server

import (
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/internal/audit"
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/internal/escrow"
	"github.com/brandpact/pact/internal/feed"
	"github.com/brandpact/pact/misc"
	"github.com/brandpact/pact/platforms/charger"
)

///////// Escrow / payments /////////

type invoiceReq struct {
	Amount  int64 `json:"amount"`
	DueDate int64 `json:"dueDate,omitempty"`
}

func requestInvoice(s *Server) gin.HandlerFunc {
	// Creator requesting payment. The deal walks invoice_needed then
	// waiting_payment in one transaction, one audit entry per transition.
	return func(c *gin.Context) {
		var req invoiceReq
		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealAccepted {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.CreatorId {
				return nil, nil, common.ErrUnauthorized
			}

			inv, err := escrow.CreateInvoice(tx, s.Cfg, d, req.Amount, req.DueDate)
			if err != nil {
				return nil, nil, err
			}

			if err = d.Transition(common.DealInvoiceNeeded); err != nil {
				return nil, nil, err
			}
			if err = audit.Log(tx, s.Cfg, &audit.Entry{
				DealId:   d.Id,
				UserId:   u.ID,
				Action:   "requested an invoice",
				Category: audit.CategoryPayments,
				Metadata: map[string]interface{}{"amount": inv.Amount},
			}); err != nil {
				return nil, nil, err
			}

			// The invoice is generated on the spot, so issuance follows
			// immediately
			if err = d.Transition(common.DealWaitingPayment); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "issued the invoice",
				Category: audit.CategoryPayments,
				Metadata: map[string]interface{}{
					"invoiceId":     inv.Id,
					"invoiceNumber": inv.InvoiceNumber,
					"amount":        inv.Amount,
					"dueDate":       inv.DueDate,
				},
			}
			return entry, &sideEffects{feed.EvInvoiceIssued, common.MsgInvoiceIssued, inv}, nil
		})
	}
}

type payReq struct {
	Milestones []*common.EscrowMilestone `json:"milestones,omitempty"` // optional split, labels + amounts
}

func payInvoice(s *Server) gin.HandlerFunc {
	// Advertiser reserving the funds. The card charge happens before the
	// transaction; a failed commit refunds it.
	return func(c *gin.Context) {
		var req payReq
		misc.BindJSON(c, &req)

		invoiceId := c.Param("invoiceId")
		u := auth.CurrentUser(c)

		var chargeId string
		if !s.Cfg.Sandbox {
			d := s.getDeal(c.Param("dealId"))
			if d == nil {
				abortWithDealErr(c, common.ErrNotFound)
				return
			}

			var err error
			s.db.View(func(tx *bolt.Tx) error {
				inv, ierr := escrow.GetInvoice(tx, s.Cfg, d.Id, invoiceId)
				if ierr != nil {
					err = ierr
					return nil
				}
				chargeId, err = charger.ReserveFunds(u.CustomerID, d.Id, inv.Amount)
				return nil
			})
			if err != nil {
				c.JSON(400, misc.StatusErr(err.Error()))
				return
			}
		}

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.Status != common.DealWaitingPayment {
				return nil, nil, common.ErrStaleState
			}
			if u.ID != d.AdvertiserId {
				return nil, nil, common.ErrUnauthorized
			}

			inv, milestones, err := escrow.PayInvoice(tx, s.Cfg, d, invoiceId, req.Milestones)
			if err != nil {
				return nil, nil, err
			}

			if err = d.Transition(common.DealBriefing); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "paid the invoice and reserved escrow funds",
				Category: audit.CategoryPayments,
				Metadata: map[string]interface{}{
					"invoiceId":  inv.Id,
					"amount":     inv.Amount,
					"milestones": len(milestones),
					"chargeId":   chargeId,
				},
			}
			return entry, &sideEffects{feed.EvFundsReserved, common.MsgFundsReserved, milestones}, nil
		})

		// A failed commit must not keep the advertiser's money
		if chargeId != "" && c.Writer.Status() != 200 {
			if err := charger.RefundFunds(chargeId); err != nil {
				s.Alert("Failed to refund charge "+chargeId, err)
			}
		}
	}
}

func releaseMilestone(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		milestoneId := c.Param("milestoneId")

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			// Money is frozen once the deal ends or enters a dispute
			if d.IsTerminal() || d.Status == common.DealDisputed {
				return nil, nil, common.ErrInvalidTransition
			}
			if u.ID != d.AdvertiserId {
				return nil, nil, common.ErrUnauthorized
			}

			m, changed, err := escrow.Release(tx, s.Cfg, d.Id, milestoneId)
			if err != nil {
				return nil, nil, err
			}
			if !changed {
				// Retried release of a paid-out milestone: success, no
				// state change, no audit entry, no double payout
				return nil, nil, nil
			}

			entry := &audit.Entry{
				Action:   "released a milestone payout",
				Category: audit.CategoryPayments,
				Metadata: map[string]interface{}{
					"milestoneId": m.Id,
					"label":       m.Label,
					"amount":      m.Amount,
				},
			}
			return entry, &sideEffects{feed.EvMilestonePaid, common.MsgMilestonePaid, m}, nil
		})
	}
}

func getEscrowSummary(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		var sum *escrow.Summary
		if err := s.db.View(func(tx *bolt.Tx) (err error) {
			d := getDealTx(tx, s, c.Param("dealId"))
			if d == nil {
				return common.ErrNotFound
			}
			if !d.IsParty(u.ID) {
				return common.ErrUnauthorized
			}
			sum, err = escrow.GetSummary(tx, s.Cfg, d)
			return
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		c.JSON(200, sum)
	}
}

func (s *Server) getDeal(dealId string) (d *common.Deal) {
	s.db.View(func(tx *bolt.Tx) error {
		d = getDealTx(tx, s, dealId)
		return nil
	})
	return
}
