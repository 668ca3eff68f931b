package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const DefaultCapacityLimit = 10

var (
	ErrVendorInactive   = errors.New("vendor is inactive")
	ErrVendorAtCapacity = errors.New("vendor is at full capacity")
)

// Vendor is a service provider with a bounded number of concurrent active assignments.
// CurrentCapacity counts active assignments and is maintained only through Reserve
// and Release so that 0 <= CurrentCapacity <= CapacityLimit holds.
type Vendor struct {
	ID              uuid.UUID `db:"id"               json:"id"`
	TenantID        uuid.UUID `db:"tenant_id"        json:"tenant_id"`
	Name            string    `db:"name"             json:"name"`
	ContactEmail    string    `db:"contact_email"    json:"contact_email,omitempty"`
	ContactPhone    string    `db:"contact_phone"    json:"contact_phone,omitempty"`
	ServiceArea     string    `db:"service_area"     json:"service_area,omitempty"`
	Specializations []string  `db:"specializations"  json:"specializations"`
	CapacityLimit   int       `db:"capacity_limit"   json:"capacity_limit"`
	CurrentCapacity int       `db:"current_capacity" json:"current_capacity"`
	Rating          *float64  `db:"rating"           json:"rating,omitempty"`
	IsActive        bool      `db:"is_active"        json:"is_active"`
	Version         int       `db:"version"          json:"version"`
	CreatedAt       time.Time `db:"created_at"       json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"       json:"updated_at"`
}

// AvailableSlots is the number of assignments the vendor can still take.
func (v *Vendor) AvailableSlots() int {
	if n := v.CapacityLimit - v.CurrentCapacity; n > 0 {
		return n
	}
	return 0
}

// CanAccept reports why the vendor cannot take a new assignment, or nil if it can.
func (v *Vendor) CanAccept() error {
	if !v.IsActive {
		return ErrVendorInactive
	}
	if v.CurrentCapacity >= v.CapacityLimit {
		return ErrVendorAtCapacity
	}
	return nil
}

// Reserve takes one capacity slot for a new active assignment.
func (v *Vendor) Reserve() error {
	if err := v.CanAccept(); err != nil {
		return err
	}
	v.CurrentCapacity++
	return nil
}

// Release returns one capacity slot. It never drops below zero.
func (v *Vendor) Release() {
	if v.CurrentCapacity > 0 {
		v.CurrentCapacity--
	}
}
