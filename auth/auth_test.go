package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"vigila/middleware"
	"vigila/models"
	"vigila/session"
)

type memUsers struct {
	mu     sync.Mutex
	byName map[string]models.User
	logins map[string]time.Time
}

func newMemUsers() *memUsers {
	return &memUsers{byName: map[string]models.User{}, logins: map[string]time.Time{}}
}

func (m *memUsers) FindByUsername(_ context.Context, username string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byName[username]
	if !ok {
		return u, ErrUserNotFound
	}
	return u, nil
}

func (m *memUsers) Create(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byName[u.Username]; ok {
		return ErrUserExists
	}
	m.byName[u.Username] = u
	return nil
}

func (m *memUsers) TouchLogin(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logins[userID] = at
	return nil
}

func newTestHandler(t *testing.T) (*Handler, *memUsers, *session.Manager) {
	t.Helper()
	users := newMemUsers()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	users.byName["anna"] = models.User{UserID: "u-1", Username: "anna", PasswordHash: string(hash), Role: "vigil"}
	m := session.NewManager([]byte("secret"), time.Hour, session.NewMemoryRegistry(), zerolog.Nop())
	return NewHandler(users, m, zerolog.Nop(), false), users, m
}

func post(h func(http.ResponseWriter, *http.Request), body string, token string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if token != "" {
		r = r.WithContext(session.WithToken(r.Context(), token))
	}
	rec := httptest.NewRecorder()
	h(rec, r)
	return rec
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request)    { h.Login(w, r, nil) }
func (h *Handler) logout(w http.ResponseWriter, r *http.Request)   { h.Logout(w, r, nil) }
func (h *Handler) refresh(w http.ResponseWriter, r *http.Request)  { h.Refresh(w, r, nil) }
func (h *Handler) register(w http.ResponseWriter, r *http.Request) { h.Register(w, r, nil) }

func TestLoginIssuesSession(t *testing.T) {
	h, users, m := newTestHandler(t)

	rec := post(h.login, `{"username":"anna","password":"correct horse"}`, "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Token   string          `json:"token"`
		Session session.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, session.RoleVigil, body.Session.Role)

	s, err := m.Resolve(context.Background(), body.Token)
	require.NoError(t, err)
	assert.Equal(t, "u-1", s.UserID)
	assert.Contains(t, users.logins, "u-1")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, middleware.TokenCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	h, _, _ := newTestHandler(t)

	assert.Equal(t, http.StatusUnauthorized, post(h.login, `{"username":"anna","password":"wrong"}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, post(h.login, `{"username":"bob","password":"whatever"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(h.login, `{"username":"anna"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(h.login, `not json`, "").Code)
}

func TestLogoutEndsSession(t *testing.T) {
	h, _, m := newTestHandler(t)
	token, s, err := m.Issue(context.Background(), models.User{UserID: "u-1", Role: "vigil"})
	require.NoError(t, err)
	var ended []string
	m.OnEnd(func(id string) { ended = append(ended, id) })

	rec := post(h.logout, ``, token)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{s.ID}, ended)
	_, err = m.Resolve(context.Background(), token)
	assert.ErrorIs(t, err, session.ErrNoSession)

	assert.Equal(t, http.StatusUnauthorized, post(h.logout, ``, token).Code)
	assert.Equal(t, http.StatusUnauthorized, post(h.logout, ``, "").Code)
}

func TestRefreshKeepsSession(t *testing.T) {
	h, _, m := newTestHandler(t)
	token, s, err := m.Issue(context.Background(), models.User{UserID: "u-1", Role: "consumer"})
	require.NoError(t, err)

	rec := post(h.refresh, ``, token)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Session session.Session `json:"session"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, s.ID, body.Session.ID)
}

func TestRegister(t *testing.T) {
	h, users, _ := newTestHandler(t)

	rec := post(h.register, `{"username":"kim","password":"longenough","role":"consumer"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	stored, err := users.FindByUsername(context.Background(), "kim")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("longenough")))
	assert.NotContains(t, rec.Body.String(), "longenough")

	assert.Equal(t, http.StatusConflict, post(h.register, `{"username":"kim","password":"longenough","role":"consumer"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(h.register, `{"username":"root","password":"longenough","role":"admin"}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, post(h.register, `{"username":"lee","password":"short","role":"vigil"}`, "").Code)
}

func TestMe(t *testing.T) {
	h, _, _ := newTestHandler(t)
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r = r.WithContext(session.WithSession(r.Context(), &session.Session{ID: "s-1", Username: "anna"}))
	rec := httptest.NewRecorder()

	h.Me(rec, r, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"anna"`)
}
