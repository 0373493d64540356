// Package guests serves the vigil's guest book.
package guests

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/models"
	"vigila/resource"
	"vigila/session"
	"vigila/utils"
	"vigila/workspace"
)

func NewHandler(spaces *workspace.Registry, backend resource.Writer[models.Guest], hub resource.Notifier, logger zerolog.Logger) *resource.Handler[models.Guest] {
	return &resource.Handler[models.Guest]{
		Domain:  workspace.Guests,
		Spaces:  spaces,
		Store:   func(w *workspace.Workspace) *cache.Store[models.Guest] { return w.Guests },
		Writer:  backend,
		Feed:    hub,
		Logger:  logger.With().Str("pkg", "guests").Logger(),
		Prepare: prepare(time.Now),
		Match: func(g models.Guest, q string) bool {
			return utils.ContainsIgnoreCase(g.Name, q) || utils.ContainsIgnoreCase(g.Email, q) || utils.ContainsIgnoreCase(g.Phone, q)
		},
	}
}

func prepare(now func() time.Time) func(*session.Session, *models.Guest) error {
	return func(s *session.Session, g *models.Guest) error {
		g.Name = strings.TrimSpace(g.Name)
		if g.Name == "" {
			return errors.New("name is required")
		}
		g.Email = strings.ToLower(strings.TrimSpace(g.Email))
		if g.Email != "" && !strings.Contains(g.Email, "@") {
			return errors.New("email is invalid")
		}
		g.ID = resource.NewID("g-")
		g.HostID = s.UserID
		g.CreatedAt = now().UTC()
		return nil
	}
}
