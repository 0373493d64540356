package globals

// Context keys
type ContextKey string

const (
	SessionKey ContextKey = "session"
	TokenKey   ContextKey = "token"
)

// SessionEndedChannel is the pub/sub channel carrying ended session IDs.
const SessionEndedChannel = "session-ended"

// BookingChangedChannel carries bookings created, cancelled or deleted on
// any instance.
const BookingChangedChannel = "booking-changed"
