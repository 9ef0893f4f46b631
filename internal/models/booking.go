package models

import (
	"math"
	"strconv"
	"strings"
)

// Amount is a decimal rent value. Backends are inconsistent about the wire
// type: the same field may arrive as a JSON string, a number or null, so
// decoding never fails and normalization happens on read.
type Amount string

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*a = ""
		return nil
	}
	s = strings.Trim(s, `"`)
	*a = Amount(strings.TrimSpace(s))
	return nil
}

// IsZero reports whether no usable value was supplied.
func (a Amount) IsZero() bool {
	return strings.TrimSpace(string(a)) == ""
}

// Float parses the amount as a non-negative decimal. Malformed or absent
// input yields 0, never NaN.
func (a Amount) Float() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(string(a)), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// RenterDetails is the renter block nested inside a booking. Any field may be
// absent.
type RenterDetails struct {
	FullName    string `json:"full_name,omitempty"`
	Username    string `json:"username,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// PropertyDetails is the property block nested inside a booking.
type PropertyDetails struct {
	Title       string `json:"title,omitempty"`
	RentPrice   Amount `json:"rent_price,omitempty"`
	MonthlyRent Amount `json:"monthly_rent,omitempty"`
}

// Booking is the authoritative record owned by the marketplace backend. This
// service only reads snapshots of it; every field besides ID is optional.
type Booking struct {
	ID              int64            `json:"id"`
	BookingType     string           `json:"booking_type,omitempty"`
	Status          string           `json:"status,omitempty"`
	RenterDetails   *RenterDetails   `json:"renter_details,omitempty"`
	PropertyDetails *PropertyDetails `json:"property_details,omitempty"`
	MonthlyRent     Amount           `json:"monthly_rent,omitempty"`
	StartDate       string           `json:"start_date,omitempty"`
	ConfirmedAt     string           `json:"confirmed_at,omitempty"`
	CompletedAt     string           `json:"completed_at,omitempty"`
	UpdatedAt       string           `json:"updated_at,omitempty"`
	EndDate         string           `json:"end_date,omitempty"`
	CheckedOutAt    string           `json:"checked_out_at,omitempty"`
}

// CheckedOut reports whether the booking has been closed from the owner's
// active view.
func (b *Booking) CheckedOut() bool {
	return strings.TrimSpace(b.CheckedOutAt) != ""
}
