package server

import (
	"github.com/brandpact/pact/internal/auth"
	"github.com/brandpact/pact/internal/common"
	"github.com/brandpact/pact/internal/templates"
)

// notifyTransition runs after a command commits. It publishes the change
// event on the feed and emails the counterparty. Both are best-effort:
// failures are alerted, never propagated, and never roll anything back.
func (s *Server) notifyTransition(d *common.Deal, actor *auth.User, fx *sideEffects) {
	s.Feed.Emit(d.Id, fx.event, fx.payload)

	if fx.message == "" {
		return
	}

	recipient := s.auth.GetUser(d.Other(actor.ID))
	if recipient == nil {
		s.Alert("Notification recipient missing for deal "+d.Id, nil)
		return
	}

	if s.Cfg.Sandbox {
		return
	}

	mc := s.Cfg.MailClient()
	if mc == nil {
		return
	}

	body := templates.DealNotifyEmail.Render(map[string]string{
		"name":    recipient.Name,
		"message": fx.message,
		"title":   d.Title,
		"link":    s.Cfg.DashURL + "/deal/" + d.Id,
	})

	resp, err := mc.SendMessage(body, "Deal update: "+d.Title, recipient.Email, recipient.Name, []string{"deal-" + d.Id})
	if err != nil || len(resp) != 1 || resp[0].RejectReason != "" {
		s.Alert("Failed to mail "+recipient.ID+" about deal "+d.Id, err)
	}
}
