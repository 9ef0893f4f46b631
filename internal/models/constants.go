package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusRejected  = "rejected"
)

const (
	BookingTypeRental = "rental"
	BookingTypeVisit  = "visit"
)

// Display fallbacks used by the customer projection.
const (
	LabelStillLiving = "still living"
	UnknownRenter    = "Unknown"
	UnknownContact   = "N/A"
	UnknownProperty  = "Unknown Property"
)

// Lifecycle transition actions recorded in the audit trail.
const (
	ActionCheckOut      = "checkout"
	ActionHide          = "hide"
	ActionHideRequested = "hide_requested"
	ActionHideCancelled = "hide_cancelled"
	ActionLoad          = "load"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

const (
	// DefaultSettleDelayMS is the wait between a successful checkout and the
	// resynchronizing reload, tolerating backend write-then-read latency.
	DefaultSettleDelayMS = 600

	// DefaultConfirmTTLSeconds is how long a pending hide confirmation stays
	// valid in the state repository.
	DefaultConfirmTTLSeconds = 5 * 60

	// DefaultBackendTimeoutSeconds bounds every call to the marketplace API.
	DefaultBackendTimeoutSeconds = 10

	// RateLimitRequests is the per-client request budget within the window.
	RateLimitRequests = 20

	// RateLimitWindow is the rate limit window in seconds.
	RateLimitWindow = 60

	// DefaultAuditLimit is how many audit entries the API returns by default.
	DefaultAuditLimit = 50
)
