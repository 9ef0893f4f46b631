package models

import "time"

// CustomerRecord is the denormalized projection of a rental booking shown on
// the owner's customer-management screen. It is recomputed from a booking
// snapshot on every load and never persisted.
type CustomerRecord struct {
	ID             int64   `json:"id"`
	RenterName     string  `json:"renter_name"`
	Email          string  `json:"email"`
	PhoneNumber    string  `json:"phone_number"`
	MoveInDate     string  `json:"move_in_date,omitempty"`
	PropertyName   string  `json:"property_name"`
	MonthlyPayment float64 `json:"monthly_payment"`
	Status         string  `json:"status"`
	CheckOutDate   string  `json:"check_out_date,omitempty"`
}

// HideConfirmation is the pending second step of a hide-from-owner request.
// It lives in the state repository until confirmed, cancelled or expired.
type HideConfirmation struct {
	BookingID   int64     `json:"booking_id"`
	Token       string    `json:"token"`
	RequestedAt time.Time `json:"requested_at"`
}

// AuditEntry records one attempted lifecycle transition for the local audit
// trail.
type AuditEntry struct {
	ID        int64     `json:"id"`
	BookingID int64     `json:"booking_id"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
