package customer

import (
	"strings"

	"tenantdesk/internal/models"
)

// firstNonEmpty walks an ordered chain of accessors and returns the first
// value with content, else the default. Field resolution is a chain rather
// than nested conditionals so chains stay easy to extend and test.
func firstNonEmpty(def string, getters ...func() string) string {
	for _, g := range getters {
		if v := strings.TrimSpace(g()); v != "" {
			return v
		}
	}
	return def
}

func firstAmount(amounts ...models.Amount) models.Amount {
	for _, a := range amounts {
		if !a.IsZero() {
			return a
		}
	}
	return ""
}

// statusLabel maps raw booking status to the display label. Confirmed and
// completed rentals both read as an ongoing tenancy; anything else passes
// through unchanged.
func statusLabel(status string) string {
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		return models.LabelStillLiving
	default:
		return status
	}
}

// MapBookingToCustomer projects a raw booking snapshot into the customer
// record shown on the owner's screen. It is a total pure function: absent
// fields degrade to placeholder values and it never fails.
func MapBookingToCustomer(b models.Booking) models.CustomerRecord {
	renter := b.RenterDetails
	if renter == nil {
		renter = &models.RenterDetails{}
	}
	property := b.PropertyDetails
	if property == nil {
		property = &models.PropertyDetails{}
	}

	return models.CustomerRecord{
		ID: b.ID,
		RenterName: firstNonEmpty(models.UnknownRenter,
			func() string { return renter.FullName },
			func() string { return renter.Username },
		),
		Email: firstNonEmpty(models.UnknownContact,
			func() string { return renter.Email },
		),
		PhoneNumber: firstNonEmpty(models.UnknownContact,
			func() string { return renter.PhoneNumber },
		),
		MoveInDate: firstNonEmpty("",
			func() string { return b.StartDate },
			func() string { return b.ConfirmedAt },
		),
		PropertyName: firstNonEmpty(models.UnknownProperty,
			func() string { return property.Title },
		),
		MonthlyPayment: firstAmount(b.MonthlyRent, property.RentPrice, property.MonthlyRent).Float(),
		Status:         statusLabel(b.Status),
		CheckOutDate: firstNonEmpty("",
			func() string { return b.CompletedAt },
			func() string { return b.UpdatedAt },
			func() string { return b.EndDate },
		),
	}
}

// MapBookings projects a full snapshot list.
func MapBookings(bookings []models.Booking) []models.CustomerRecord {
	records := make([]models.CustomerRecord, 0, len(bookings))
	for _, b := range bookings {
		records = append(records, MapBookingToCustomer(b))
	}
	return records
}

// FilterCustomers returns the records matching a case-insensitive substring
// query over renter name, email and property, and an exact status label. The
// input slice is never mutated.
func FilterCustomers(records []models.CustomerRecord, query, status string) []models.CustomerRecord {
	query = strings.ToLower(strings.TrimSpace(query))
	status = strings.TrimSpace(status)

	out := make([]models.CustomerRecord, 0, len(records))
	for _, r := range records {
		if status != "" && !strings.EqualFold(r.Status, status) {
			continue
		}
		if query != "" && !matchesQuery(r, query) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func matchesQuery(r models.CustomerRecord, query string) bool {
	return strings.Contains(strings.ToLower(r.RenterName), query) ||
		strings.Contains(strings.ToLower(r.Email), query) ||
		strings.Contains(strings.ToLower(r.PropertyName), query)
}
