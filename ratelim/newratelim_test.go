package ratelim

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
)

func TestLimitPerClient(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, time.Minute)
	h := rl.Limit(func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.WriteHeader(http.StatusNoContent)
	})

	call := func(addr string) int {
		r := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		r.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h(rec, r, nil)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, call("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, call("10.0.0.2:1000"))
}

func TestBucketsExpire(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, 10*time.Millisecond)

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))
	assert.Eventually(t, func() bool { return rl.Allow("k") }, time.Second, 5*time.Millisecond)
}

func TestWithKey(t *testing.T) {
	rl := NewRateLimiter(0.001, 1, 0).WithKey(func(r *http.Request) string { return r.Header.Get("X-User") })

	assert.Equal(t, "", rl.keyFor(httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, "10.1.1.1", ClientIP(&http.Request{RemoteAddr: "10.1.1.1:55"}))
	assert.Equal(t, "pipe", ClientIP(&http.Request{RemoteAddr: "pipe"}))
}
