package session

import (
	"context"
	"sync"
	"time"
)

// MemoryRegistry is a single-process Registry. It backs tests and local runs
// without Redis.
type MemoryRegistry struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	subs     []chan string
	now      func() time.Time
}

type memoryEntry struct {
	session Session
	expires time.Time
}

// NewMemoryRegistry returns an empty MemoryRegistry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{sessions: make(map[string]memoryEntry), now: time.Now}
}

func (r *MemoryRegistry) Put(_ context.Context, s Session, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = memoryEntry{session: s, expires: r.now().Add(ttl)}
	return nil
}

func (r *MemoryRegistry) Get(_ context.Context, id string) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return Session{}, false, nil
	}
	if r.now().After(e.expires) {
		delete(r.sessions, id)
		return Session{}, false, nil
	}
	return e.session, true, nil
}

func (r *MemoryRegistry) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *MemoryRegistry) PublishEnd(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- id:
		default:
		}
	}
	return nil
}

func (r *MemoryRegistry) SubscribeEnds(ctx context.Context) (<-chan string, error) {
	ch := make(chan string, 16)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}
