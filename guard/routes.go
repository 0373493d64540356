package guard

import (
	"errors"
	"path"
	"strings"

	"vigila/session"
)

// ErrUnknownRoute is returned by Resolve for paths with no descriptor.
var ErrUnknownRoute = errors.New("unknown route")

// RouteID names every navigable destination of the front end.
type RouteID int

const (
	RouteHome RouteID = iota
	RouteLogin
	RouteProfile
	RouteBookings
	RouteBookingDetail
	RouteBookingVoucher
	RouteServices
	RouteServiceDetail
	RouteSales
	RouteSaleDetail
	RouteSaleReceipt
	RouteGuests
	RouteGuestDetail
	RouteFeed
	RouteCache
	RouteAdmin

	routeCount
)

var routeNames = [routeCount]string{
	RouteHome:           "home",
	RouteLogin:          "login",
	RouteProfile:        "profile",
	RouteBookings:       "bookings",
	RouteBookingDetail:  "booking_detail",
	RouteBookingVoucher: "booking_voucher",
	RouteServices:       "services",
	RouteServiceDetail:  "service_detail",
	RouteSales:          "sales",
	RouteSaleDetail:     "sale_detail",
	RouteSaleReceipt:    "sale_receipt",
	RouteGuests:         "guests",
	RouteGuestDetail:    "guest_detail",
	RouteFeed:           "feed",
	RouteCache:          "cache",
	RouteAdmin:          "admin",
}

func (id RouteID) String() string {
	if id < 0 || id >= routeCount {
		return "unknown"
	}
	return routeNames[id]
}

// Descriptor is the static access metadata of a route.
type Descriptor struct {
	Pattern string
	Private bool
	// Roles whitelists the roles admitted to a private route. Empty admits
	// any signed-in session.
	Roles []session.Role
}

// Allows reports whether role is whitelisted by d.
func (d Descriptor) Allows(role session.Role) bool {
	if len(d.Roles) == 0 {
		return true
	}
	for _, r := range d.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Table maps every RouteID to its descriptor.
type Table struct {
	routes [routeCount]Descriptor
}

var (
	anyMember  = []session.Role{session.RoleConsumer, session.RoleVigil}
	vigilsOnly = []session.Role{session.RoleVigil}
)

// DefaultTable is the route table of the booking front end.
func DefaultTable() *Table {
	return &Table{routes: [routeCount]Descriptor{
		RouteHome:           {Pattern: "/", Private: false, Roles: nil},
		RouteLogin:          {Pattern: "/login", Private: false, Roles: nil},
		RouteProfile:        {Pattern: "/profile", Private: true, Roles: nil},
		RouteBookings:       {Pattern: "/bookings", Private: true, Roles: anyMember},
		RouteBookingDetail:  {Pattern: "/bookings/:id", Private: true, Roles: anyMember},
		RouteBookingVoucher: {Pattern: "/bookings/:id/voucher", Private: true, Roles: anyMember},
		RouteServices:       {Pattern: "/services", Private: true, Roles: vigilsOnly},
		RouteServiceDetail:  {Pattern: "/services/:id", Private: true, Roles: vigilsOnly},
		RouteSales:          {Pattern: "/sales", Private: true, Roles: vigilsOnly},
		RouteSaleDetail:     {Pattern: "/sales/:id", Private: true, Roles: vigilsOnly},
		RouteSaleReceipt:    {Pattern: "/sales/:id/receipt", Private: true, Roles: vigilsOnly},
		RouteGuests:         {Pattern: "/guests", Private: true, Roles: vigilsOnly},
		RouteGuestDetail:    {Pattern: "/guests/:id", Private: true, Roles: vigilsOnly},
		RouteFeed:           {Pattern: "/feed", Private: true, Roles: nil},
		RouteCache:          {Pattern: "/cache/:domain", Private: true, Roles: nil},
		RouteAdmin:          {Pattern: "/admin", Private: true, Roles: []session.Role{session.RoleAdmin}},
	}}
}

// NewTable builds a table from explicit descriptors.
func NewTable(routes [routeCount]Descriptor) *Table {
	return &Table{routes: routes}
}

// Lookup returns the descriptor of id.
func (t *Table) Lookup(id RouteID) (Descriptor, bool) {
	if t == nil || id < 0 || id >= routeCount {
		return Descriptor{}, false
	}
	d := t.routes[id]
	return d, d.Pattern != ""
}

// Resolve finds the route whose pattern matches p once cleaned. Query
// strings are ignored.
func (t *Table) Resolve(p string) (RouteID, Descriptor, error) {
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	segs := splitPath(path.Clean("/" + p))
	for id := RouteID(0); id < routeCount; id++ {
		d, ok := t.Lookup(id)
		if ok && matchSegments(splitPath(d.Pattern), segs) {
			return id, d, nil
		}
	}
	return 0, Descriptor{}, ErrUnknownRoute
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, path []string) bool {
	if len(pattern) != len(path) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			if path[i] == "" {
				return false
			}
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
