package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leadgate/leadgate/internal/infra/http/middleware"
	"github.com/leadgate/leadgate/internal/security"
	"github.com/leadgate/leadgate/internal/usecase"
)

const correlationIDHeader = "X-Correlation-Id"

// SubmitContactExecutor lets handler tests swap the pipeline for a mock.
type SubmitContactExecutor interface {
	Execute(ctx context.Context, input usecase.SubmitContactInput, meta usecase.SubmissionMetadata) (*usecase.SubmitContactOutput, error)
}

type ContactHandler struct {
	submitContact SubmitContactExecutor
	logger        *zap.Logger
}

func NewContactHandler(submitContact SubmitContactExecutor, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{
		submitContact: submitContact,
		logger:        logger,
	}
}

// Handle accepts a contact-form submission. The response surface is always
// {success, message}; which failure occurred is reflected only in the status
// code, never in internal detail.
func (h *ContactHandler) Handle(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get(correlationIDHeader)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	w.Header().Set(correlationIDHeader, correlationID)

	var input usecase.SubmitContactInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("Malformed contact submission payload",
			zap.Error(err),
			zap.String("correlation_id", correlationID),
		)
		middleware.RecordLeadSubmission("invalid")
		writeJSON(w, http.StatusBadRequest, usecase.SubmitContactOutput{
			Success: false,
			Message: "Invalid JSON",
		})
		return
	}

	meta := usecase.SubmissionMetadata{
		ClientIP:      security.ClientIP(r.Header),
		UserAgent:     r.UserAgent(),
		CorrelationID: correlationID,
	}

	output, err := h.submitContact.Execute(r.Context(), input, meta)
	if err != nil {
		status, outcome := classifySubmissionError(err)
		middleware.RecordLeadSubmission(outcome)
		writeJSON(w, status, usecase.SubmitContactOutput{
			Success: false,
			Message: err.Error(),
		})
		return
	}

	middleware.RecordLeadSubmission("accepted")
	writeJSON(w, http.StatusOK, *output)
}

func classifySubmissionError(err error) (int, string) {
	var domainErr *usecase.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case usecase.CodeBotDetected:
			// Bots get a plain failure with no status-code signal.
			return http.StatusOK, "honeypot"
		case usecase.CodeRateLimited:
			return http.StatusTooManyRequests, "rate_limited"
		default:
			return http.StatusBadRequest, "invalid"
		}
	}

	return http.StatusInternalServerError, "error"
}

func writeJSON(w http.ResponseWriter, status int, body usecase.SubmitContactOutput) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
