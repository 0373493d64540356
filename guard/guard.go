// Package guard decides whether a navigation to a route may render, given
// the route's access metadata and the current session.
package guard

import (
	"context"
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"

	"vigila/session"
)

// Decision is the state of an authorization check.
type Decision int

const (
	Pending Decision = iota
	Admit
	Deny
)

func (d Decision) String() string {
	switch d {
	case Admit:
		return "admit"
	case Deny:
		return "deny"
	default:
		return "pending"
	}
}

// Accessor resolves the session of a request when none was handed to the
// guard.
type Accessor interface {
	Current(ctx context.Context) *session.Session
}

// Observer is told about every resolved decision.
type Observer interface {
	Decided(route string, decision string)
}

// Outcome is a resolved decision. Redirect is set when Decision is Deny.
type Outcome struct {
	Route    RouteID
	Decision Decision
	Session  *session.Session
	Redirect string
	Reason   string
}

// Guard evaluates route descriptors against sessions.
type Guard struct {
	table    *Table
	accessor Accessor
	fallback string
	logger   zerolog.Logger
	observer Observer
}

// Option configures a Guard.
type Option func(*Guard)

// WithFallback sets the public route denied navigations are sent to.
func WithFallback(path string) Option {
	return func(g *Guard) { g.fallback = path }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(g *Guard) { g.logger = l.With().Str("pkg", "guard").Logger() }
}

// WithObserver attaches an Observer.
func WithObserver(obs Observer) Option {
	return func(g *Guard) { g.observer = obs }
}

// New returns a Guard over table. accessor may be nil, in which case an
// absent session stays absent.
func New(table *Table, accessor Accessor, opts ...Option) *Guard {
	g := &Guard{
		table:    table,
		accessor: accessor,
		fallback: "/login",
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Table returns the guard's route table.
func (g *Guard) Table() *Table {
	return g.table
}

// Decide evaluates route for s. Nothing is cached: every call consults the
// descriptor and, when needed, the accessor again.
func (g *Guard) Decide(ctx context.Context, route RouteID, s *session.Session) Outcome {
	out := g.decide(ctx, route, s)
	g.record(out)
	return out
}

func (g *Guard) decide(ctx context.Context, route RouteID, s *session.Session) Outcome {
	out := Outcome{Route: route, Decision: Pending, Session: s}

	desc, ok := g.table.Lookup(route)
	if !ok {
		return g.deny(out, "unknown route")
	}
	if !desc.Private {
		out.Decision = Admit
		return out
	}
	if out.Session == nil && g.accessor != nil {
		out.Session = g.accessor.Current(ctx)
	}
	if out.Session == nil {
		return g.deny(out, "no session")
	}
	if !desc.Allows(out.Session.Role) {
		return g.deny(out, "role not allowed")
	}
	out.Decision = Admit
	return out
}

// DecidePath resolves path against the table and decides it. Paths with no
// descriptor are denied.
func (g *Guard) DecidePath(ctx context.Context, path string, s *session.Session) Outcome {
	route, _, err := g.table.Resolve(path)
	if err != nil {
		out := g.deny(Outcome{Route: -1, Session: s}, err.Error())
		out.Redirect = g.redirectFor(path)
		g.record(out)
		return out
	}
	out := g.decide(ctx, route, s)
	if out.Decision == Deny {
		out.Redirect = g.redirectFor(path)
	}
	g.record(out)
	return out
}

// Protect wraps next so it only runs when route admits the request. Denied
// requests are redirected to the fallback with the requested URI in the
// next query parameter; admitted ones carry the session in their context.
func (g *Guard) Protect(route RouteID, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		out := g.Decide(r.Context(), route, session.FromContext(r.Context()))
		if out.Decision != Admit {
			g.logger.Debug().Str("route", route.String()).Str("reason", out.Reason).Str("path", r.URL.Path).Msg("navigation denied")
			http.Redirect(w, r, g.redirectFor(r.URL.RequestURI()), http.StatusFound)
			return
		}
		if out.Session != nil {
			r = r.WithContext(session.WithSession(r.Context(), out.Session))
		}
		next(w, r, ps)
	}
}

func (g *Guard) deny(out Outcome, reason string) Outcome {
	out.Decision = Deny
	out.Reason = reason
	out.Redirect = g.fallback
	return out
}

func (g *Guard) redirectFor(requested string) string {
	if requested == "" || requested == g.fallback {
		return g.fallback
	}
	return g.fallback + "?next=" + url.QueryEscape(requested)
}

func (g *Guard) record(out Outcome) {
	if g.observer != nil {
		g.observer.Decided(out.Route.String(), out.Decision.String())
	}
}
