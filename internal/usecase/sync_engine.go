package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/leadgate/leadgate/internal/entity"
	"github.com/leadgate/leadgate/internal/infra/integration/hubspot"
	"github.com/leadgate/leadgate/internal/security"
)

const (
	hubspotMaxAttempts = 3
	retryBaseDelay     = 250 * time.Millisecond
	retryMaxDelay      = 2 * time.Second
)

// SyncResult is the terminal outcome of one sync invocation. Attempts and
// IdempotencyKey are recorded on the lead regardless of status.
type SyncResult struct {
	Status         string
	ContactID      string
	Attempts       int
	IdempotencyKey string
}

// HubSpotSyncEngine synchronizes a stored lead to the CRM with bounded,
// sequential retries. It never propagates failure to its caller: every
// failure path resolves to a needs_sync result plus an error log, so CRM
// unavailability can never fail a submission.
type HubSpotSyncEngine struct {
	CRM    CRMClientInterface
	Logger *zap.Logger

	maxAttempts int
	wait        func(ctx context.Context, d time.Duration) error
}

func NewHubSpotSyncEngine(crm CRMClientInterface, logger *zap.Logger) *HubSpotSyncEngine {
	return &HubSpotSyncEngine{
		CRM:         crm,
		Logger:      logger,
		maxAttempts: hubspotMaxAttempts,
		wait:        waitForRetry,
	}
}

func (e *HubSpotSyncEngine) Sync(ctx context.Context, lead *entity.Lead) SyncResult {
	emailHash := security.HashEmail(lead.Email)
	idempotencyKey := buildIdempotencyKey(lead.ID, emailHash)
	props := buildContactProperties(lead)

	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		attempts = attempt

		contactID, err := e.attempt(ctx, props, idempotencyKey)
		if err == nil {
			e.Logger.Info("HubSpot contact synced",
				zap.String("lead_id", lead.ID),
				zap.String("email_hash", emailHash),
				zap.Int("attempts", attempt),
			)
			return SyncResult{
				Status:         entity.SyncStatusSynced,
				ContactID:      contactID,
				Attempts:       attempt,
				IdempotencyKey: idempotencyKey,
			}
		}
		lastErr = err

		if attempt < e.maxAttempts {
			e.Logger.Warn("HubSpot sync retry scheduled",
				zap.Int("attempt", attempt),
				zap.String("email_hash", emailHash),
			)
			if waitErr := e.wait(ctx, retryDelay(attempt)); waitErr != nil {
				lastErr = waitErr
				break
			}
		}
	}

	e.Logger.Error("HubSpot sync failed",
		zap.Error(normalizeSyncError(lastErr)),
		zap.String("lead_id", lead.ID),
		zap.String("email_hash", emailHash),
		zap.Int("attempts", attempts),
	)

	return SyncResult{
		Status:         entity.SyncStatusNeedsSync,
		Attempts:       attempts,
		IdempotencyKey: idempotencyKey,
	}
}

// attempt runs one search-then-upsert round. The idempotency key is reused
// verbatim on every round so HubSpot deduplicates retried creates.
func (e *HubSpotSyncEngine) attempt(ctx context.Context, props hubspot.ContactProperties, idempotencyKey string) (string, error) {
	existingID, err := e.CRM.SearchContactByEmail(ctx, props.Email)
	if err != nil {
		return "", err
	}

	return e.CRM.UpsertContact(ctx, props, existingID, idempotencyKey)
}

// buildIdempotencyKey derives the key from immutable submission data. It is
// computed once per sync invocation and must not be regenerated per HTTP
// attempt; regenerating it would defeat CRM-side deduplication.
func buildIdempotencyKey(leadID, emailHash string) string {
	return security.HashSpan(leadID + ":" + emailHash)
}

func buildContactProperties(lead *entity.Lead) hubspot.ContactProperties {
	firstName, lastName := hubspot.SplitName(lead.Name)
	return hubspot.ContactProperties{
		Email:     lead.Email,
		FirstName: firstName,
		LastName:  lastName,
		Phone:     lead.Phone,
	}
}

func retryDelay(attempt int) time.Duration {
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}

func waitForRetry(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func normalizeSyncError(err error) error {
	if err == nil {
		return errors.New("unknown HubSpot sync error")
	}
	return err
}
