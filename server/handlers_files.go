package server

import (
	"github.com/boltdb/bolt"
	"github.com/gin-gonic/gin"

	"github.com/brandpact/pact/internal/audit"
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/internal/feed"
	"github.com/brandpact/pact/internal/files"
	"github.com/brandpact/pact/misc"
)

///////// Files /////////

type fileReq struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
}

func registerFile(s *Server) gin.HandlerFunc {
	// The bytes live in external storage; this only records existence so
	// gating can ask "is there at least one draft file?"
	return func(c *gin.Context) {
		var req fileReq
		if err := misc.BindJSON(c, &req); err != nil {
			c.JSON(400, misc.StatusErr("Error unmarshalling request body"))
			return
		}

		if req.Name == "" {
			c.JSON(400, misc.StatusErrCode("validation", "file name is required"))
			return
		}

		s.runCommand(c, func(tx *bolt.Tx, d *common.Deal, u *auth.User) (*audit.Entry, *sideEffects, error) {
			if d.IsTerminal() {
				return nil, nil, common.ErrInvalidTransition
			}

			f := &files.File{
				DealId:   d.Id,
				UserId:   u.ID,
				Category: req.Category,
				Name:     req.Name,
				URL:      req.URL,
			}
			if err := files.Register(tx, s.Cfg, f); err != nil {
				return nil, nil, err
			}

			entry := &audit.Entry{
				Action:   "attached a file",
				Category: audit.CategoryFiles,
				Metadata: map[string]interface{}{"fileId": f.Id, "category": f.Category, "name": f.Name},
			}
			return entry, &sideEffects{feed.EvFileRegistered, "", f}, nil
		})
	}
}

func getFiles(s *Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)

		var out []*files.File
		if err := s.db.View(func(tx *bolt.Tx) error {
			d := getDealTx(tx, s, c.Param("dealId"))
			if d == nil {
				return common.ErrNotFound
			}
			if !d.IsParty(u.ID) {
				return common.ErrUnauthorized
			}
			out = files.ForDeal(tx, s.Cfg, d.Id)
			return nil
		}); err != nil {
			abortWithDealErr(c, err)
			return
		}

		c.JSON(200, out)
	}
}
