package usecase

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/leadgate/leadgate/internal/entity"
	"github.com/leadgate/leadgate/internal/infra/queue"
	"github.com/leadgate/leadgate/internal/security"
)

const defaultSyncTimeout = 30 * time.Second

// User-facing messages. Internal failure detail never reaches the caller.
const (
	msgSuccess    = "Thank you for your message! We'll be in touch soon."
	msgHoneypot   = "Unable to submit your message. Please try again."
	msgValidation = "Please check your form inputs and try again."
	msgRateLimit  = "Too many submissions. Please try again later."
	msgGeneric    = "Something went wrong. Please try again or email us directly."
)

// SubmitContactUseCase composes the lead pipeline: honeypot, validation,
// sanitization, dual rate limit, durable insert, best-effort CRM sync. Only
// the guard, the limiter, and the insert can fail the submission; everything
// after the insert is absorbed.
type SubmitContactUseCase struct {
	LeadRepo   LeadRepositoryInterface
	RateLimits RateLimitStoreInterface
	SyncEngine SyncEngineInterface
	Producer   QueueProducerInterface
	Logger     *zap.Logger

	RateLimit       int
	RateLimitWindow time.Duration
	SyncTimeout     time.Duration
}

func NewSubmitContactUseCase(
	leadRepo LeadRepositoryInterface,
	rateLimits RateLimitStoreInterface,
	syncEngine SyncEngineInterface,
	producer QueueProducerInterface,
	logger *zap.Logger,
	rateLimit int,
	rateLimitWindow time.Duration,
) *SubmitContactUseCase {
	return &SubmitContactUseCase{
		LeadRepo:        leadRepo,
		RateLimits:      rateLimits,
		SyncEngine:      syncEngine,
		Producer:        producer,
		Logger:          logger,
		RateLimit:       rateLimit,
		RateLimitWindow: rateLimitWindow,
		SyncTimeout:     defaultSyncTimeout,
	}
}

func (uc *SubmitContactUseCase) Execute(ctx context.Context, input SubmitContactInput, meta SubmissionMetadata) (*SubmitContactOutput, error) {
	// Honeypot first: expected bot traffic, not a system fault. Nothing is
	// persisted and the limiter is not charged.
	if input.Website != "" {
		uc.Logger.Warn("Honeypot field triggered for contact form submission")
		return nil, &DomainError{Code: CodeBotDetected, Message: msgHoneypot}
	}

	if validationErrors := ValidateSubmitContactInput(input); len(validationErrors) > 0 {
		fields := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			fields = append(fields, e.Field)
		}
		uc.Logger.Warn("Contact form validation failed", zap.Strings("fields", fields))
		return nil, &DomainError{Code: CodeValidationError, Message: msgValidation}
	}

	lead := &entity.Lead{
		Name:    security.SanitizeText(input.Name),
		Email:   security.SanitizeEmail(input.Email),
		Phone:   security.SanitizeText(input.Phone),
		Message: security.SanitizeText(input.Message),
	}
	emailHash := security.HashEmail(lead.Email)
	ipHash := security.HashIP(meta.ClientIP)

	allowed := uc.checkRateLimits(ctx, emailHash, ipHash)
	if !allowed {
		// Record the attempt as a suspicious lead for audit; the actor still
		// gets a failure response and no CRM sync.
		lead.IsSuspicious = true
		lead.SuspicionReason = entity.SuspicionRateLimit
		if _, err := uc.LeadRepo.Insert(ctx, lead); err != nil {
			uc.Logger.Error("Failed to record suspicious lead", zap.Error(err), zap.String("email_hash", emailHash))
		}
		return nil, &DomainError{Code: CodeRateLimited, Message: msgRateLimit}
	}

	if _, err := uc.LeadRepo.Insert(ctx, lead); err != nil {
		uc.Logger.Error("Contact form submission error", zap.Error(err), zap.String("email_hash", emailHash))
		return nil, &TechnicalError{Code: CodeDatabaseError, Message: msgGeneric}
	}

	// The submission has succeeded; everything below is best-effort and must
	// never change the response.
	uc.syncLead(ctx, lead, emailHash)

	return &SubmitContactOutput{Success: true, Message: msgSuccess}, nil
}

// checkRateLimits charges both counters. The email key is independent of
// network origin, so rotating source IPs does not reset the limit for a
// given email. Backend errors fail open: a Redis blip must not lose leads.
func (uc *SubmitContactUseCase) checkRateLimits(ctx context.Context, emailHash, ipHash string) bool {
	checks := []struct {
		identity string
		key      string
		hash     string
	}{
		{"email", "email:" + emailHash, emailHash},
		{"ip", "ip:" + ipHash, ipHash},
	}

	for _, check := range checks {
		allowed, err := uc.RateLimits.CheckAndIncrement(ctx, check.key, uc.RateLimit, uc.RateLimitWindow)
		if err != nil {
			uc.Logger.Error("Rate limit backend error", zap.Error(err), zap.String("identity", check.identity))
			continue
		}
		if !allowed {
			uc.Logger.Warn("Rate limit exceeded for contact form",
				zap.String("identity", check.identity),
				zap.String("identity_hash", check.hash),
			)
			return false
		}
	}

	return true
}

func (uc *SubmitContactUseCase) syncLead(ctx context.Context, lead *entity.Lead, emailHash string) {
	timeout := uc.SyncTimeout
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}

	// The lead is already durable; a client disconnect must not abort the
	// bookkeeping, or the row stays pending and the reconciler never sees it.
	// The timeout alone bounds the CRM phase.
	detached := context.WithoutCancel(ctx)
	syncCtx, cancel := context.WithTimeout(detached, timeout)
	defer cancel()

	result := uc.SyncEngine.Sync(syncCtx, lead)

	update := entity.SyncUpdate{
		ContactID:      result.ContactID,
		SyncStatus:     result.Status,
		RetryCount:     result.Attempts,
		IdempotencyKey: result.IdempotencyKey,
		LastSyncAt:     time.Now(),
	}
	if err := uc.LeadRepo.UpdateSyncFields(detached, lead.ID, update); err != nil {
		uc.Logger.Error("Failed to update HubSpot sync status", zap.Error(err), zap.String("lead_id", lead.ID))
	}

	if result.Status == entity.SyncStatusNeedsSync && uc.Producer != nil {
		payload := queue.NeedsSyncPayload{
			LeadID:         lead.ID,
			EmailHash:      emailHash,
			Attempts:       result.Attempts,
			IdempotencyKey: result.IdempotencyKey,
		}
		if err := uc.Producer.PublishNeedsSync(detached, payload); err != nil {
			uc.Logger.Error("Failed to enqueue needs_sync lead", zap.Error(err), zap.String("lead_id", lead.ID))
		}
	}
}
