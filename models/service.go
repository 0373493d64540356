package models

import "time"

// Service is an offering published by a vigil.
type Service struct {
	ID          string    `json:"id" bson:"id" db:"id"`
	VigilID     string    `json:"vigilId" bson:"vigilId" db:"vigil_id"`
	Name        string    `json:"name" bson:"name" db:"name"`
	Description string    `json:"description,omitempty" bson:"description,omitempty" db:"description"`
	UnitPrice   float64   `json:"unitPrice" bson:"unitPrice" db:"unit_price"`
	Unit        string    `json:"unit" bson:"unit" db:"unit"` // hour, day, visit
	Active      bool      `json:"active" bson:"active" db:"active"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

func (s Service) EntityID() string { return s.ID }
