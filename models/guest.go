package models

import "time"

// Guest is a CRM record a vigil keeps about a person they care for.
type Guest struct {
	ID        string    `json:"id" bson:"id" db:"id"`
	HostID    string    `json:"hostId" bson:"hostId" db:"host_id"`
	Name      string    `json:"name" bson:"name" db:"name"`
	Email     string    `json:"email,omitempty" bson:"email,omitempty" db:"email"`
	Phone     string    `json:"phone,omitempty" bson:"phone,omitempty" db:"phone"`
	Address   string    `json:"address,omitempty" bson:"address,omitempty" db:"address"`
	Notes     string    `json:"notes,omitempty" bson:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt" db:"created_at"`
}

func (g Guest) EntityID() string { return g.ID }
