package entity

import (
	"context"
	"time"
)

// HubSpot sync states. A lead starts as pending and resolves to synced or
// needs_sync once the sync engine reports; needs_sync rows are reconciled
// out-of-band.
const (
	SyncStatusPending   = "pending"
	SyncStatusSynced    = "synced"
	SyncStatusNeedsSync = "needs_sync"
)

const (
	SuspicionNone      = "none"
	SuspicionRateLimit = "rate_limit"
)

type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`

	IsSuspicious    bool   `json:"is_suspicious"`
	SuspicionReason string `json:"suspicion_reason,omitempty"`

	HubSpotContactID      string     `json:"hubspot_contact_id,omitempty"`
	HubSpotSyncStatus     string     `json:"hubspot_sync_status"`
	HubSpotRetryCount     int        `json:"hubspot_retry_count"`
	HubSpotIdempotencyKey string     `json:"hubspot_idempotency_key,omitempty"`
	HubSpotLastSyncAt     *time.Time `json:"hubspot_last_sync_attempt,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncUpdate carries the CRM fields mutated after insert. These are the only
// fields the pipeline ever touches on an existing row.
type SyncUpdate struct {
	ContactID      string
	SyncStatus     string
	RetryCount     int
	IdempotencyKey string
	LastSyncAt     time.Time
}

type LeadRepositoryInterface interface {
	Insert(ctx context.Context, lead *Lead) (string, error)
	UpdateSyncFields(ctx context.Context, leadID string, update SyncUpdate) error
}
