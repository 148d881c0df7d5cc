package database

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/leadgate/leadgate/internal/entity"
)

// ErrInvalidLeadID marks an insert whose response carried a missing or
// non-string id. The sync pipeline needs a stable string id, so this is
// fatal to the submission.
var ErrInvalidLeadID = errors.New("supabase insert returned invalid lead id")

// SupabaseLeadRepository persists leads through the Supabase REST endpoint
// (PostgREST). It is the only writer of the leads table in this service.
type SupabaseLeadRepository struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

func NewSupabaseLeadRepository(baseURL, serviceKey string, timeout time.Duration) *SupabaseLeadRepository {
	return &SupabaseLeadRepository{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: timeout},
	}
}

type leadRow struct {
	// id is validated by hand; PostgREST normally returns a uuid string but
	// a misconfigured table can yield a number.
	ID any `json:"id"`
}

// Insert creates the lead row and returns the store-assigned id.
func (r *SupabaseLeadRepository) Insert(ctx context.Context, lead *entity.Lead) (string, error) {
	payload := map[string]any{
		"name":                    lead.Name,
		"email":                   lead.Email,
		"phone":                   lead.Phone,
		"message":                 lead.Message,
		"is_suspicious":           lead.IsSuspicious,
		"hubspot_sync_status":     entity.SyncStatusPending,
		"hubspot_retry_count":     0,
		"hubspot_idempotency_key": nil,
	}
	if lead.IsSuspicious {
		payload["suspicion_reason"] = lead.SuspicionReason
	} else {
		payload["suspicion_reason"] = nil
	}

	body, err := json.Marshal([]map[string]any{payload})
	if err != nil {
		return "", fmt.Errorf("marshal lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.restURL(), bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	r.setHeaders(req)
	req.Header.Set("Prefer", "return=representation")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("supabase insert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errText, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("supabase insert failed (status %d): %s", resp.StatusCode, string(errText))
	}

	var rows []leadRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return "", fmt.Errorf("decode supabase insert response: %w", err)
	}
	if len(rows) == 0 {
		return "", ErrInvalidLeadID
	}

	id, ok := rows[0].ID.(string)
	if !ok || strings.TrimSpace(id) == "" {
		return "", ErrInvalidLeadID
	}

	lead.ID = id
	return id, nil
}

// UpdateSyncFields patches the CRM columns of an existing lead row.
func (r *SupabaseLeadRepository) UpdateSyncFields(ctx context.Context, leadID string, update entity.SyncUpdate) error {
	payload := map[string]any{
		"hubspot_sync_status":       update.SyncStatus,
		"hubspot_retry_count":       update.RetryCount,
		"hubspot_idempotency_key":   update.IdempotencyKey,
		"hubspot_last_sync_attempt": update.LastSyncAt.UTC().Format(time.RFC3339),
	}
	if update.ContactID != "" {
		payload["hubspot_contact_id"] = update.ContactID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sync update: %w", err)
	}

	target := r.restURL() + "?id=eq." + url.QueryEscape(leadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, target, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	r.setHeaders(req)

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("supabase update request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("supabase update failed (status %d)", resp.StatusCode)
	}

	return nil
}

func (r *SupabaseLeadRepository) restURL() string {
	return r.baseURL + "/rest/v1/leads"
}

func (r *SupabaseLeadRepository) setHeaders(req *http.Request) {
	req.Header.Set("apikey", r.serviceKey)
	req.Header.Set("Authorization", "Bearer "+r.serviceKey)
	req.Header.Set("Content-Type", "application/json")
}
