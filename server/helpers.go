package server

import (
	"encoding/json"
	"time"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/internal/audit"
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/misc"
)

// CommandResult is what every mutating route returns: the new deal
// snapshot plus the audit entry the command produced.
type CommandResult struct {
	Deal  *common.Deal `json:"deal"`
	Audit *audit.Entry `json:"audit,omitempty"`
}

// sideEffects describes the best-effort work fired after a commit: the
// feed event and the counterparty notification. Never awaited inside the
// transaction.
type sideEffects struct {
	event   string
	message string
	payload interface{}
}

// dealCommand runs inside one R/W transaction with the deal already
// loaded and the actor already verified as a party. It mutates the deal
// and related records and returns the audit entry describing the change.
// A nil entry means nothing changed (idempotent no-op).
type dealCommand func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error)

// runCommand is the transition contract in one place: party check, guard
// (inside fn), atomic status+audit write, then fire-and-forget effects.
func (s *Server) runCommand(c *gin.Context, fn dealCommand) {
	dealId := c.Param("dealId")
	if dealId == "" {
		c.JSON(400, misc.StatusErrCode("validation", common.ErrDealID.Error()))
		return
	}

	u := auth.CurrentUser(c)

	var (
		d     *common.Deal
		entry *audit.Entry
		fx    *sideEffects
	)

	if err := s.db.Update(func(tx *bolt.Tx) (err error) {
		if d = getDealTx(tx, s, dealId); d == nil {
			return common.ErrNotFound
		}

		if !d.IsParty(u.ID) {
			return common.ErrUnauthorized
		}

		if entry, fx, err = fn(tx, d, u); err != nil {
			return err
		}

		if entry != nil {
			entry.DealId = d.Id
			if entry.UserId == "" {
				entry.UserId = u.ID
			}
			// An unaudited state change would break the core guarantee,
			// so an audit failure fails the whole command
			if err = audit.Log(tx, s.Cfg, entry); err != nil {
				return err
			}
		}

		return saveDeal(tx, s, d)
	}); err != nil {
		abortWithDealErr(c, err)
		return
	}

	if fx != nil {
		go s.notifyTransition(d, u, fx)
	}

	c.JSON(200, &CommandResult{Deal: d, Audit: entry})
}

func getDealTx(tx *bolt.Tx, s *Server, dealId string) *common.Deal {
	var d common.Deal
	v := tx.Bucket([]byte(s.Cfg.Bucket.Deal)).Get([]byte(dealId))
	if len(v) == 0 || json.Unmarshal(v, &d) != nil || d.Id == "" {
		return nil
	}
	return &d
}

func saveDeal(tx *bolt.Tx, s *Server, d *common.Deal) error {
	d.Updated = time.Now().Unix()
	return misc.PutTxJson(tx, s.Cfg.Bucket.Deal, d.Id, d)
}

// abortWithDealErr maps the core error taxonomy onto http codes and a
// stable machine-readable key.
func abortWithDealErr(c *gin.Context, err error) {
	var code int
	switch err {
	case common.ErrNotFound:
		code = 404
	case common.ErrUnauthorized:
		code = 401
	case common.ErrInvalidTransition, common.ErrIllegalOperation,
		common.ErrVersionConflict, common.ErrStaleState:
		code = 409
	default:
		code = 400
	}
	c.JSON(code, misc.StatusErrCode(common.ErrKey(err), err.Error()))
}
