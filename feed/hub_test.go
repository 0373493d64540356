package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigila/models"
	"vigila/session"
)

func allowAll(*http.Request) bool { return true }

func newHubServer(t *testing.T, h *Hub, s *session.Session) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s != nil {
			r = r.WithContext(session.WithSession(r.Context(), s))
		}
		h.Serve(w, r, nil)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestNotifyReachesSessionSubscribers(t *testing.T) {
	h := NewHub(nil, allowAll, zerolog.Nop())
	defer h.Stop()
	conn := dial(t, newHubServer(t, h, &session.Session{ID: "s-1"}))
	require.Eventually(t, func() bool { return h.Subscribers("s-1") == 1 }, time.Second, 5*time.Millisecond)

	h.Notify("s-2", Notice{Type: NoticeInvalidate, Domain: "sales"})
	h.Notify("s-1", Notice{Type: NoticeInvalidate, Domain: "bookings"})

	var n Notice
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, NoticeInvalidate, n.Type)
	assert.Equal(t, "bookings", n.Domain)
	assert.False(t, n.At.IsZero())
}

func TestSessionEndClosesSubscribers(t *testing.T) {
	m := session.NewManager([]byte("secret"), time.Hour, session.NewMemoryRegistry(), zerolog.Nop())
	_, s, err := m.Issue(context.Background(), models.User{UserID: "u-1", Role: "vigil"})
	require.NoError(t, err)
	h := NewHub(m, allowAll, zerolog.Nop())
	defer h.Stop()
	conn := dial(t, newHubServer(t, h, &s))
	require.Eventually(t, func() bool { return h.Subscribers(s.ID) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, m.End(context.Background(), s.ID))

	var n Notice
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, conn.ReadJSON(&n))
	assert.Equal(t, NoticeSessionEnded, n.Type)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	assert.Zero(t, h.Subscribers(s.ID))
}

func TestServeRequiresSession(t *testing.T) {
	h := NewHub(nil, allowAll, zerolog.Nop())
	url := newHubServer(t, h, nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestClientLeaveUnsubscribes(t *testing.T) {
	h := NewHub(nil, allowAll, zerolog.Nop())
	conn := dial(t, newHubServer(t, h, &session.Session{ID: "s-1"}))
	require.Eventually(t, func() bool { return h.Subscribers("s-1") == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool { return h.Subscribers("s-1") == 0 }, time.Second, 5*time.Millisecond)
}
