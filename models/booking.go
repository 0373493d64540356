package models

import "time"

// Booking statuses.
const (
	BookingPending   = "pending"
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
	BookingCompleted = "completed"
)

// Booking is a consumer's reservation of a vigil's service.
type Booking struct {
	ID         string    `json:"id" bson:"id" db:"id"`
	ConsumerID string    `json:"consumerId" bson:"consumerId" db:"consumer_id"`
	VigilID    string    `json:"vigilId" bson:"vigilId" db:"vigil_id"`
	ServiceID  string    `json:"serviceId" bson:"serviceId" db:"service_id"`
	StartDate  time.Time `json:"startDate" bson:"startDate" db:"start_date"`
	EndDate    time.Time `json:"endDate" bson:"endDate" db:"end_date"`
	Address    string    `json:"address,omitempty" bson:"address,omitempty" db:"address"`
	Notes      string    `json:"notes,omitempty" bson:"notes,omitempty" db:"notes"`
	Price      float64   `json:"price" bson:"price" db:"price"`
	Status     string    `json:"status" bson:"status" db:"status"` // pending, confirmed, cancelled, completed
	CreatedAt  time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

func (b Booking) EntityID() string { return b.ID }
