// Package resource serves the list, detail, create and delete views of a
// domain from the caller's workspace.
package resource

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"vigila/cache"
	"vigila/feed"
	"vigila/session"
	"vigila/utils"
	"vigila/workspace"
)

// Notifier pushes notices to the views of a session.
type Notifier interface {
	Notify(sessionID string, n feed.Notice)
}

// Writer is the write side of a domain backend.
type Writer[T cache.Entity] interface {
	Insert(ctx context.Context, e T) error
	Delete(ctx context.Context, id string) error
}

type (
	prepareFn[T any] func(s *session.Session, e *T) error
	afterFn[T any]   func(ctx context.Context, ws *workspace.Workspace, e T)
	matchFn[T any]   func(e T, search string) bool
)

// Handler serves one domain.
type Handler[T cache.Entity] struct {
	Domain string
	Spaces *workspace.Registry
	Store  func(*workspace.Workspace) *cache.Store[T]
	Writer Writer[T]
	Feed   Notifier
	Logger zerolog.Logger

	// Prepare fills server-owned fields of a created entity.
	Prepare prepareFn[T]
	// After runs once a create or delete reached the backend.
	After afterFn[T]
	// Match filters list views on ?search=.
	Match matchFn[T]
}

type listView[T any] struct {
	Data     []T       `json:"data"`
	Total    int       `json:"total"`
	SyncedAt time.Time `json:"syncedAt"`
}

// List handles GET /<domain>
func (h *Handler[T]) List(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	opts := utils.ParseQueryOptions(r)

	items, err := st.Read(r.Context(), opts.Refresh)
	if err != nil {
		h.Logger.Warn().Err(err).Str("domain", h.Domain).Msg("list read failed")
		var stale any
		if held := st.Snapshot(); len(held) > 0 {
			stale = held
		}
		utils.RespondWithStoreError(w, err, stale)
		return
	}

	if opts.Search != "" && h.Match != nil {
		filtered := items[:0]
		for _, e := range items {
			if h.Match(e, opts.Search) {
				filtered = append(filtered, e)
			}
		}
		items = filtered
	}
	utils.RespondWithJSON(w, http.StatusOK, listView[T]{
		Data:     utils.Paginate(items, opts),
		Total:    len(items),
		SyncedAt: st.SyncedAt(),
	})
}

// Detail handles GET /<domain>/:id
func (h *Handler[T]) Detail(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	st, ok := h.store(w, r)
	if !ok {
		return
	}
	id := ps.ByName("id")
	e, err := st.ReadDetail(r.Context(), id, utils.ForceFlag(r))
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, e)
}

// Create handles POST /<domain>
func (h *Handler[T]) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s, ws, st, ok := h.caller(w, r)
	if !ok {
		return
	}

	var e T
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid input")
		return
	}
	if h.Prepare != nil {
		if err := h.Prepare(s, &e); err != nil {
			utils.RespondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if err := h.Writer.Insert(r.Context(), e); err != nil {
		h.Logger.Error().Err(err).Str("domain", h.Domain).Msg("create failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}

	st.Invalidate()
	if h.After != nil {
		h.After(r.Context(), ws, e)
	}
	h.notify(s.ID, feed.NoticeInvalidate, e.EntityID())
	utils.RespondWithJSON(w, http.StatusCreated, e)
}

// Delete handles DELETE /<domain>/:id
func (h *Handler[T]) Delete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	s, ws, st, ok := h.caller(w, r)
	if !ok {
		return
	}
	id := ps.ByName("id")
	if id == "" {
		utils.RespondWithError(w, http.StatusBadRequest, "Missing ID")
		return
	}

	// only entities inside the caller's scope may be deleted
	e, err := st.ReadDetail(r.Context(), id, false)
	if err != nil {
		utils.RespondWithStoreError(w, err, nil)
		return
	}
	if err := h.Writer.Delete(r.Context(), id); err != nil {
		h.Logger.Error().Err(err).Str("domain", h.Domain).Str("id", id).Msg("delete failed")
		utils.RespondWithStoreError(w, err, nil)
		return
	}

	st.Remove(id)
	if h.After != nil {
		h.After(r.Context(), ws, e)
	}
	h.notify(s.ID, feed.NoticeRemove, id)
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true})
}

func (h *Handler[T]) store(w http.ResponseWriter, r *http.Request) (*cache.Store[T], bool) {
	_, _, st, ok := h.caller(w, r)
	return st, ok
}

func (h *Handler[T]) caller(w http.ResponseWriter, r *http.Request) (*session.Session, *workspace.Workspace, *cache.Store[T], bool) {
	s, ws, ok := Caller(w, r, h.Spaces)
	if !ok {
		return nil, nil, nil, false
	}
	st := h.Store(ws)
	if st == nil {
		utils.RespondWithError(w, http.StatusForbidden, "Not available for this role")
		return nil, nil, nil, false
	}
	return s, ws, st, true
}

// Caller returns the session of r and its workspace. It answers 401 and
// reports false when the request has no session or the session has ended.
func Caller(w http.ResponseWriter, r *http.Request, spaces *workspace.Registry) (*session.Session, *workspace.Workspace, bool) {
	s := session.FromContext(r.Context())
	if s == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "No active session")
		return nil, nil, false
	}
	ws := spaces.For(s)
	if ws == nil {
		utils.RespondWithError(w, http.StatusUnauthorized, "Session ended")
		return nil, nil, false
	}
	return s, ws, true
}

func (h *Handler[T]) notify(sessionID, kind, id string) {
	if h.Feed != nil {
		h.Feed.Notify(sessionID, feed.Notice{Type: kind, Domain: h.Domain, ID: id})
	}
}

// NewID returns an identifier for a created entity.
func NewID(prefix string) string {
	return prefix + uuid.NewString()
}
