package resource

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"vigila/feed"
	"vigila/session"
	"vigila/utils"
	"vigila/workspace"
)

// Control exposes the state of the caller's stores and lets a view mark
// them stale.
type Control struct {
	Spaces *workspace.Registry
	Feed   Notifier
}

type storeStatus struct {
	Domain   string    `json:"domain"`
	Size     int       `json:"size"`
	SyncedAt time.Time `json:"syncedAt"`
	Stale    bool      `json:"stale"`
}

// Status handles GET /cache/:domain. The domain "all" lists every store.
func (c *Control) Status(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	handles, ok := c.handles(w, r, ps.ByName("domain"))
	if !ok {
		return
	}
	out := make([]storeStatus, 0, len(handles))
	for _, h := range handles {
		synced := h.SyncedAt()
		out = append(out, storeStatus{Domain: h.Domain(), Size: h.Len(), SyncedAt: synced, Stale: synced.IsZero()})
	}
	utils.RespondWithJSON(w, http.StatusOK, out)
}

// Invalidate handles POST /cache/:domain. The next read of the store goes
// to the backend; held entities stay visible until then.
func (c *Control) Invalidate(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	handles, ok := c.handles(w, r, ps.ByName("domain"))
	if !ok {
		return
	}
	s := session.FromContext(r.Context())
	for _, h := range handles {
		h.Invalidate()
		if c.Feed != nil {
			c.Feed.Notify(s.ID, feed.Notice{Type: feed.NoticeInvalidate, Domain: h.Domain()})
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.M{"success": true, "invalidated": len(handles)})
}

func (c *Control) handles(w http.ResponseWriter, r *http.Request, domain string) ([]workspace.Handle, bool) {
	_, ws, ok := Caller(w, r, c.Spaces)
	if !ok {
		return nil, false
	}
	if domain == "all" {
		return ws.Handles(), true
	}
	h := ws.Handle(domain)
	if h == nil {
		utils.RespondWithError(w, http.StatusNotFound, "Unknown domain")
		return nil, false
	}
	return []workspace.Handle{h}, true
}
