package usecase

import (
	"context"
	"time"

	"github.com/leadgate/leadgate/internal/entity"
	"github.com/leadgate/leadgate/internal/infra/integration/hubspot"
	"github.com/leadgate/leadgate/internal/infra/queue"
)

// RateLimitStoreInterface counts submissions per identity key. Both the
// Redis and the in-memory backends implement it; the orchestrator never
// depends on which one is active.
type RateLimitStoreInterface interface {
	CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// CRMClientInterface abstracts the HubSpot contacts API so the retry
// protocol can be exercised against a fake client.
type CRMClientInterface interface {
	SearchContactByEmail(ctx context.Context, email string) (string, error)
	UpsertContact(ctx context.Context, props hubspot.ContactProperties, existingID, idempotencyKey string) (string, error)
}

// SyncEngineInterface runs the best-effort CRM sync. It never fails the
// request; every outcome is a SyncResult.
type SyncEngineInterface interface {
	Sync(ctx context.Context, lead *entity.Lead) SyncResult
}

// QueueProducerInterface hands exhausted leads to the reconciliation queue.
type QueueProducerInterface interface {
	PublishNeedsSync(ctx context.Context, payload queue.NeedsSyncPayload) error
}

type LeadRepositoryInterface = entity.LeadRepositoryInterface
