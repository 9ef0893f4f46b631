package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAmountDecoding(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"quoted decimal", `"450.00"`, 450},
		{"bare number", `450.5`, 450.5},
		{"integer", `1200`, 1200},
		{"null", `null`, 0},
		{"empty string", `""`, 0},
		{"malformed", `"12abc"`, 0},
		{"negative clamped", `"-300"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a Amount
			err := json.Unmarshal([]byte(tt.raw), &a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, a.Float())
		})
	}
}

func TestAmountIsZero(t *testing.T) {
	assert.True(t, Amount("").IsZero())
	assert.True(t, Amount("  ").IsZero())
	assert.False(t, Amount("450").IsZero())
	// A malformed value still counts as supplied; it parses to 0 instead.
	assert.False(t, Amount("abc").IsZero())
	assert.Equal(t, float64(0), Amount("abc").Float())
}

func TestBookingDecodeTolerant(t *testing.T) {
	raw := `{
		"id": 7,
		"booking_type": "rental",
		"status": "confirmed",
		"renter_details": {"full_name": "Dara", "email": "dara@example.com"},
		"property_details": {"title": "Sunny Flat", "rent_price": "450.00"},
		"start_date": "2024-01-05",
		"checked_out_at": null
	}`

	var b Booking
	require.NoError(t, json.Unmarshal([]byte(raw), &b))

	assert.Equal(t, int64(7), b.ID)
	assert.Equal(t, StatusConfirmed, b.Status)
	assert.Equal(t, "Dara", b.RenterDetails.FullName)
	assert.Equal(t, float64(450), b.PropertyDetails.RentPrice.Float())
	assert.False(t, b.CheckedOut())
}

func TestBookingDecodeEmptyObject(t *testing.T) {
	var b Booking
	require.NoError(t, json.Unmarshal([]byte(`{}`), &b))

	assert.Zero(t, b.ID)
	assert.Nil(t, b.RenterDetails)
	assert.Nil(t, b.PropertyDetails)
	assert.False(t, b.CheckedOut())
}

func TestBookingCheckedOut(t *testing.T) {
	b := Booking{CheckedOutAt: "2024-06-01T12:00:00Z"}
	assert.True(t, b.CheckedOut())

	b.CheckedOutAt = "   "
	assert.False(t, b.CheckedOut())
}
