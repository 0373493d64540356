package models

import "time"

// Sale is the payment record a vigil earns from a booking.
type Sale struct {
	ID        string    `json:"id" bson:"id" db:"id"`
	VigilID   string    `json:"vigilId" bson:"vigilId" db:"vigil_id"`
	BookingID string    `json:"bookingId" bson:"bookingId" db:"booking_id"`
	Amount    float64   `json:"amount" bson:"amount" db:"amount"`
	Fee       float64   `json:"fee" bson:"fee" db:"fee"`
	Currency  string    `json:"currency" bson:"currency" db:"currency"`
	Status    string    `json:"status" bson:"status" db:"status"` // pending, paid, refunded
	PaidAt    time.Time `json:"paidAt" bson:"paidAt" db:"paid_at"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

func (s Sale) EntityID() string { return s.ID }

// Net is the amount left to the vigil after fees.
func (s Sale) Net() float64 { return s.Amount - s.Fee }
