// Package services serves the offerings a vigil publishes.
package services

import (
	"context"
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

// Units a service can be priced in.
var units = map[string]bool{"hour": true, "day": true, "visit": true}

// NewHandler wires the service views of a vigil. Creating or deleting a
// service also marks the admins' service stores stale.
func NewHandler(spaces *workspace.Registry, backend resource.Writer[models.Service], hub resource.Notifier, logger zerolog.Logger) *resource.Handler[models.Service] {
	return &resource.Handler[models.Service]{
		Domain:  workspace.Services,
		Spaces:  spaces,
		Store:   func(w *workspace.Workspace) *cache.Store[models.Service] { return w.Services },
		Writer:  backend,
		Feed:    hub,
		Logger:  logger.With().Str("pkg", "services").Logger(),
		Prepare: prepare(time.Now),
		After: func(_ context.Context, ws *workspace.Workspace, _ models.Service) {
			spaces.Each(func(other *workspace.Workspace) {
				if other != ws && other.Role == session.RoleAdmin && other.Services != nil {
					other.Services.Invalidate()
				}
			})
		},
		Match: func(s models.Service, q string) bool {
			return utils.ContainsIgnoreCase(s.Name, q) || utils.ContainsIgnoreCase(s.Description, q)
		},
	}
}

func prepare(now func() time.Time) func(*session.Session, *models.Service) error {
	return func(s *session.Session, svc *models.Service) error {
		svc.Name = strings.TrimSpace(svc.Name)
		if svc.Name == "" {
			return errors.New("name is required")
		}
		if svc.UnitPrice <= 0 {
			return errors.New("unit price must be positive")
		}
		if svc.Unit == "" {
			svc.Unit = "hour"
		}
		if !units[svc.Unit] {
			return errors.New("unit must be hour, day or visit")
		}
		svc.ID = resource.NewID("svc-")
		svc.VigilID = s.UserID
		svc.Active = true
		svc.CreatedAt = now().UTC()
		return nil
	}
}
