package server

import (
	"log"
	"net/http"

	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/config"
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/feed"
	"github.com/brandpact/pact/misc"
)

// Server is the deal lifecycle manager: the only component external
// collaborators talk to. Every mutating route resolves the actor, checks
// the guard, commits the state change plus its audit entry in one bolt
// transaction, and only then fires best-effort side effects.
type Server struct {
	Cfg *config.Config

	r    *gin.Engine
	db   *bolt.DB
	auth *auth.Auth
	Feed *feed.Feed
}

func New(cfg *config.Config, r *gin.Engine) (*Server, error) {
	db := misc.OpenDB(cfg.DBPath, cfg.DBName)
	if err := misc.InitBuckets(db, cfg.AllBuckets()); err != nil {
		return nil, err
	}

	// Human-facing ids start at 1
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, n := range []string{cfg.Bucket.User, cfg.Bucket.Deal, cfg.Bucket.Audit} {
			if err := misc.InitIndex(tx, n, 1); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	srv := &Server{
		Cfg:  cfg,
		r:    r,
		db:   db,
		auth: auth.New(db, cfg),
		Feed: feed.New(),
	}

	srv.initializeRoutes(r)
	return srv, nil
}

func (s *Server) initializeRoutes(r *gin.Engine) {
	r.POST("/signUp", signUp(s))

	api := r.Group("/api/v1", s.auth.VerifyUser())

	// Commands
	api.POST("/deal", createProposal(s))
	api.POST("/deal/:dealId/counter", submitCounterOffer(s))
	api.POST("/deal/:dealId/accept", acceptTerms(s))
	api.POST("/deal/:dealId/reject", rejectDeal(s))
	api.POST("/deal/:dealId/dispute", openDispute(s))
	api.POST("/deal/:dealId/start", startWork(s))
	api.POST("/deal/:dealId/draft", markDraftSubmitted(s))
	api.POST("/deal/:dealId/draftAccepted", markDraftAccepted(s))
	api.POST("/deal/:dealId/requestChanges", requestChanges(s))

	api.POST("/deal/:dealId/requestInvoice", requestInvoice(s))
	api.POST("/deal/:dealId/invoice/:invoiceId/pay", payInvoice(s))
	api.POST("/deal/:dealId/milestone/:milestoneId/release", releaseMilestone(s))

	api.POST("/deal/:dealId/file", registerFile(s))

	// Read-only queries
	api.GET("/deals", getDeals(s))
	api.GET("/deal/:dealId", getDeal(s))
	api.GET("/deal/:dealId/terms", getTermsHistory(s))
	api.GET("/deal/:dealId/escrow", getEscrowSummary(s))
	api.GET("/deal/:dealId/audit", getAuditLog(s))
	api.GET("/deal/:dealId/files", getFiles(s))
}

func (s *Server) Run() error {
	return http.ListenAndServe(s.Cfg.Host+":"+s.Cfg.Port, s.r)
}

func (s *Server) Close() error {
	return s.db.Close()
}

// Alert logs an operator-facing error. Side-effect failures land here;
// they never roll anything back.
func (s *Server) Alert(msg string, err error) {
	log.Println("ALERT:", msg, err)
}
