package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/leadgate/leadgate/internal/entity"
	"github.com/leadgate/leadgate/internal/infra/database"
	"github.com/leadgate/leadgate/internal/infra/queue"
	"github.com/leadgate/leadgate/internal/infra/ratelimit"
	"github.com/leadgate/leadgate/internal/security"
)

type MockLeadRepository struct {
	mock.Mock
}

func (m *MockLeadRepository) Insert(ctx context.Context, lead *entity.Lead) (string, error) {
	args := m.Called(ctx, lead)
	if id := args.String(0); id != "" {
		lead.ID = id
	}
	return args.String(0), args.Error(1)
}

func (m *MockLeadRepository) UpdateSyncFields(ctx context.Context, leadID string, update entity.SyncUpdate) error {
	args := m.Called(ctx, leadID, update)
	return args.Error(0)
}

type MockRateLimitStore struct {
	mock.Mock
}

func (m *MockRateLimitStore) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type MockSyncEngine struct {
	mock.Mock
}

func (m *MockSyncEngine) Sync(ctx context.Context, lead *entity.Lead) SyncResult {
	args := m.Called(ctx, lead)
	return args.Get(0).(SyncResult)
}

type MockQueueProducer struct {
	mock.Mock
}

func (m *MockQueueProducer) PublishNeedsSync(ctx context.Context, payload queue.NeedsSyncPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func testMeta() SubmissionMetadata {
	return SubmissionMetadata{ClientIP: "203.0.113.7", UserAgent: "test-agent", CorrelationID: "corr-1"}
}

func syncedResult() SyncResult {
	return SyncResult{
		Status:         entity.SyncStatusSynced,
		ContactID:      "hs-9",
		Attempts:       1,
		IdempotencyKey: "key-abc",
	}
}

func newTestUseCase(repo *MockLeadRepository, store RateLimitStoreInterface, engine SyncEngineInterface, producer QueueProducerInterface, logger *zap.Logger) *SubmitContactUseCase {
	return NewSubmitContactUseCase(repo, store, engine, producer, logger, 3, time.Hour)
}

func allowAllStore() *MockRateLimitStore {
	store := new(MockRateLimitStore)
	store.On("CheckAndIncrement", mock.Anything, mock.Anything, 3, time.Hour).Return(true, nil)
	return store
}

func TestExecute_HoneypotShortCircuits(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	store := new(MockRateLimitStore)
	engine := new(MockSyncEngine)

	input := validInput()
	input.Website = "https://spam.example.com"

	uc := newTestUseCase(repo, store, engine, nil, logger)
	output, err := uc.Execute(context.Background(), input, testMeta())

	assert.Nil(t, output)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeBotDetected, domainErr.Code)

	// Bots must not be persisted, rate-limit charged, or synced.
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CheckAndIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	engine.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)

	// Logged as expected traffic, not as a fault.
	assert.Equal(t, 1, logs.FilterMessage("Honeypot field triggered for contact form submission").Len())
	assert.Empty(t, logs.FilterLevelExact(zapcore.ErrorLevel).All())
}

func TestExecute_ValidationFailureRejectsBeforePersistence(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	store := new(MockRateLimitStore)

	input := validInput()
	input.Email = "broken"

	uc := newTestUseCase(repo, store, new(MockSyncEngine), nil, logger)
	output, err := uc.Execute(context.Background(), input, testMeta())

	assert.Nil(t, output)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeValidationError, domainErr.Code)

	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "CheckAndIncrement", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_RateLimitedStoresSuspiciousLeadWithoutSync(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	engine := new(MockSyncEngine)

	store := new(MockRateLimitStore)
	store.On("CheckAndIncrement", mock.Anything, mock.Anything, 3, time.Hour).Return(false, nil)

	var inserted *entity.Lead
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*entity.Lead) }).
		Return("lead-1", nil)

	uc := newTestUseCase(repo, store, engine, nil, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	assert.Nil(t, output)
	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRateLimited, domainErr.Code)

	require.NotNil(t, inserted)
	assert.True(t, inserted.IsSuspicious)
	assert.Equal(t, entity.SuspicionRateLimit, inserted.SuspicionReason)

	engine.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterMessage("Rate limit exceeded for contact form").Len())
}

func TestExecute_RateLimitedResponseSurvivesAuditInsertFailure(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("", errors.New("insert failed (status 503)"))

	store := new(MockRateLimitStore)
	store.On("CheckAndIncrement", mock.Anything, mock.Anything, 3, time.Hour).Return(false, nil)

	uc := newTestUseCase(repo, store, new(MockSyncEngine), nil, logger)
	_, err := uc.Execute(context.Background(), validInput(), testMeta())

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRateLimited, domainErr.Code)
	assert.Equal(t, 1, logs.FilterMessage("Failed to record suspicious lead").Len())
}

func TestExecute_RateLimitBackendErrorFailsOpen(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.Anything).Return(nil)

	store := new(MockRateLimitStore)
	store.On("CheckAndIncrement", mock.Anything, mock.Anything, 3, time.Hour).
		Return(false, errors.New("redis: connection refused"))

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	uc := newTestUseCase(repo, store, engine, nil, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, 2, logs.FilterMessage("Rate limit backend error").Len())
}

func TestExecute_InsertFailureIsTechnicalError(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("", errors.New("insert failed (status 500)"))

	engine := new(MockSyncEngine)

	uc := newTestUseCase(repo, allowAllStore(), engine, nil, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	assert.Nil(t, output)
	var techErr *TechnicalError
	require.ErrorAs(t, err, &techErr)
	assert.Equal(t, CodeDatabaseError, techErr.Code)

	engine.AssertNotCalled(t, "Sync", mock.Anything, mock.Anything)
	assert.Equal(t, 1, logs.FilterMessage("Contact form submission error").Len())
}

func TestExecute_SanitizesBeforePersisting(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)

	var inserted *entity.Lead
	repo.On("Insert", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { inserted = args.Get(1).(*entity.Lead) }).
		Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.Anything).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	input := validInput()
	input.Name = "  Ada <script>Lovelace</script>  "
	input.Email = "  Ada@Example.COM "
	input.Message = `say "hi" & </b>`

	uc := newTestUseCase(repo, allowAllStore(), engine, nil, logger)
	_, err := uc.Execute(context.Background(), input, testMeta())

	require.NoError(t, err)
	require.NotNil(t, inserted)
	assert.Equal(t, "Ada &lt;script&gt;Lovelace&lt;&#x2F;script&gt;", inserted.Name)
	assert.Equal(t, "ada@example.com", inserted.Email)
	assert.Equal(t, "say &quot;hi&quot; &amp; &lt;&#x2F;b&gt;", inserted.Message)
}

func TestExecute_SuccessfulSyncRecordsFields(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.MatchedBy(func(u entity.SyncUpdate) bool {
		return u.SyncStatus == entity.SyncStatusSynced &&
			u.ContactID == "hs-9" &&
			u.RetryCount == 1 &&
			u.IdempotencyKey == "key-abc" &&
			!u.LastSyncAt.IsZero()
	})).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	producer := new(MockQueueProducer)

	uc := newTestUseCase(repo, allowAllStore(), engine, producer, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, msgSuccess, output.Message)

	repo.AssertExpectations(t)
	producer.AssertNotCalled(t, "PublishNeedsSync", mock.Anything, mock.Anything)
}

func TestExecute_ExhaustedSyncIsAbsorbedAndEnqueued(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.MatchedBy(func(u entity.SyncUpdate) bool {
		return u.SyncStatus == entity.SyncStatusNeedsSync && u.RetryCount == 3 && u.ContactID == ""
	})).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(SyncResult{
		Status:         entity.SyncStatusNeedsSync,
		Attempts:       3,
		IdempotencyKey: "key-abc",
	})

	emailHash := security.HashEmail("ada@example.com")
	producer := new(MockQueueProducer)
	producer.On("PublishNeedsSync", mock.Anything, queue.NeedsSyncPayload{
		LeadID:         "lead-1",
		EmailHash:      emailHash,
		Attempts:       3,
		IdempotencyKey: "key-abc",
	}).Return(nil)

	uc := newTestUseCase(repo, allowAllStore(), engine, producer, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	// CRM failure never reaches the caller.
	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, msgSuccess, output.Message)

	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
}

func TestExecute_SyncStatusUpdateFailureIsAbsorbed(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.Anything).
		Return(errors.New("patch failed (status 500)"))

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	uc := newTestUseCase(repo, allowAllStore(), engine, nil, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, 1, logs.FilterMessage("Failed to update HubSpot sync status").Len())
}

func TestExecute_ProducerFailureIsAbsorbed(t *testing.T) {
	logger, logs := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.Anything).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(SyncResult{
		Status:         entity.SyncStatusNeedsSync,
		Attempts:       3,
		IdempotencyKey: "key-abc",
	})

	producer := new(MockQueueProducer)
	producer.On("PublishNeedsSync", mock.Anything, mock.Anything).
		Return(errors.New("channel closed"))

	uc := newTestUseCase(repo, allowAllStore(), engine, producer, logger)
	output, err := uc.Execute(context.Background(), validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, 1, logs.FilterMessage("Failed to enqueue needs_sync lead").Len())
}

func TestExecute_BookkeepingSurvivesClientDisconnect(t *testing.T) {
	logger, _ := newObservedLogger()
	ctx, cancel := context.WithCancel(context.Background())

	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)

	var updateCtx context.Context
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.MatchedBy(func(u entity.SyncUpdate) bool {
		return u.SyncStatus == entity.SyncStatusNeedsSync
	})).Run(func(args mock.Arguments) {
		updateCtx = args.Get(0).(context.Context)
	}).Return(nil)

	// The client disconnects while the engine is mid-sync.
	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(SyncResult{Status: entity.SyncStatusNeedsSync, Attempts: 3, IdempotencyKey: "key-abc"})

	var publishCtx context.Context
	producer := new(MockQueueProducer)
	producer.On("PublishNeedsSync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { publishCtx = args.Get(0).(context.Context) }).
		Return(nil)

	uc := newTestUseCase(repo, allowAllStore(), engine, producer, logger)
	output, err := uc.Execute(ctx, validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)

	repo.AssertExpectations(t)
	producer.AssertExpectations(t)
	require.NotNil(t, updateCtx)
	assert.NoError(t, updateCtx.Err(), "sync-field update must not inherit the request cancellation")
	require.NotNil(t, publishCtx)
	assert.NoError(t, publishCtx.Err(), "queue publish must not inherit the request cancellation")
}

func TestExecute_NeedsSyncRecordReachesStoreAfterDisconnect(t *testing.T) {
	logger, logs := newObservedLogger()
	ctx, cancel := context.WithCancel(context.Background())

	var patches int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`[{"id":"lead-1"}]`))
		case http.MethodPatch:
			atomic.AddInt32(&patches, 1)
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(server.Close)
	repo := database.NewSupabaseLeadRepository(server.URL, "service-key", 5*time.Second)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(SyncResult{Status: entity.SyncStatusNeedsSync, Attempts: 3, IdempotencyKey: "key-abc"})

	uc := newTestUseCase(nil, allowAllStore(), engine, nil, logger)
	uc.LeadRepo = repo
	output, err := uc.Execute(ctx, validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&patches), "the needs_sync record must land despite the disconnect")
	assert.Empty(t, logs.FilterMessage("Failed to update HubSpot sync status").All())
}

func TestExecute_SyncPhaseRemainsBounded(t *testing.T) {
	logger, _ := newObservedLogger()

	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, "lead-1", mock.Anything).Return(nil)

	var syncDeadline time.Time
	var hasDeadline bool
	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			syncDeadline, hasDeadline = args.Get(0).(context.Context).Deadline()
		}).
		Return(syncedResult())

	uc := newTestUseCase(repo, allowAllStore(), engine, nil, logger)
	_, err := uc.Execute(context.Background(), validInput(), testMeta())

	require.NoError(t, err)
	assert.True(t, hasDeadline, "the CRM phase must carry a deadline")
	assert.WithinDuration(t, time.Now().Add(defaultSyncTimeout), syncDeadline, 5*time.Second)
}

// Dual-limit behavior against the real in-memory backend: the email counter
// is independent of source IP, and vice versa.
func TestExecute_EmailLimitSurvivesIPRotation(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	uc := newTestUseCase(repo, ratelimit.NewMemoryStore(), engine, nil, logger)

	for i := 0; i < 3; i++ {
		meta := testMeta()
		meta.ClientIP = fmt.Sprintf("203.0.113.%d", i+1)
		_, err := uc.Execute(context.Background(), validInput(), meta)
		require.NoError(t, err, "submission %d from a fresh IP should pass", i+1)
	}

	meta := testMeta()
	meta.ClientIP = "203.0.113.99"
	_, err := uc.Execute(context.Background(), validInput(), meta)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRateLimited, domainErr.Code)
}

func TestExecute_IPLimitSurvivesEmailRotation(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	uc := newTestUseCase(repo, ratelimit.NewMemoryStore(), engine, nil, logger)

	for i := 0; i < 3; i++ {
		input := validInput()
		input.Email = fmt.Sprintf("user%d@example.com", i+1)
		_, err := uc.Execute(context.Background(), input, testMeta())
		require.NoError(t, err, "submission %d with a fresh email should pass", i+1)
	}

	input := validInput()
	input.Email = "another@example.com"
	_, err := uc.Execute(context.Background(), input, testMeta())

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeRateLimited, domainErr.Code)
}

func TestExecute_FreshIdentityPairIsUnaffected(t *testing.T) {
	logger, _ := newObservedLogger()
	repo := new(MockLeadRepository)
	repo.On("Insert", mock.Anything, mock.Anything).Return("lead-1", nil)
	repo.On("UpdateSyncFields", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	engine := new(MockSyncEngine)
	engine.On("Sync", mock.Anything, mock.Anything).Return(syncedResult())

	uc := newTestUseCase(repo, ratelimit.NewMemoryStore(), engine, nil, logger)

	for i := 0; i < 4; i++ {
		uc.Execute(context.Background(), validInput(), testMeta())
	}

	input := validInput()
	input.Email = "fresh@example.com"
	meta := testMeta()
	meta.ClientIP = "198.51.100.1"
	output, err := uc.Execute(context.Background(), input, meta)

	require.NoError(t, err)
	assert.True(t, output.Success)
}
