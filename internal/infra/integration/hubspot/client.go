package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the HubSpot CRM v3 contacts API.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

func NewClient(baseURL, apiToken string, timeout time.Duration) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		http:     &http.Client{Timeout: timeout},
	}
}

// SearchContactByEmail returns the id of the contact with the given email,
// or "" when none exists. A non-2xx response or a response body whose
// results field is not an array is an error; partial state is never guessed.
func (c *Client) SearchContactByEmail(ctx context.Context, email string) (string, error) {
	payload, err := json.Marshal(buildSearchRequest(email))
	if err != nil {
		return "", fmt.Errorf("marshal search request: %w", err)
	}

	url := c.baseURL + "/crm/v3/objects/contacts/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("hubspot search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("hubspot search failed (status %d)", resp.StatusCode)
	}

	var searchData struct {
		Total   int             `json:"total"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchData); err != nil {
		return "", fmt.Errorf("decode hubspot search response: %w", err)
	}

	if len(searchData.Results) == 0 || string(searchData.Results) == "null" {
		if searchData.Total > 0 {
			return "", fmt.Errorf("hubspot search response missing results array")
		}
		return "", nil
	}

	var results []contactResponse
	if err := json.Unmarshal(searchData.Results, &results); err != nil {
		return "", fmt.Errorf("hubspot search response missing results array: %w", err)
	}

	if len(results) == 0 {
		return "", nil
	}
	return results[0].ID, nil
}

// UpsertContact creates the contact, or updates it when existingID is set.
// The idempotency key is sent as a header on every attempt so HubSpot can
// deduplicate retried requests server-side.
func (c *Client) UpsertContact(ctx context.Context, props ContactProperties, existingID, idempotencyKey string) (string, error) {
	url := c.baseURL + "/crm/v3/objects/contacts"
	method := http.MethodPost
	if existingID != "" {
		url += "/" + existingID
		method = http.MethodPatch
	}

	payload, err := json.Marshal(map[string]any{"properties": props})
	if err != nil {
		return "", fmt.Errorf("marshal contact properties: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewBuffer(payload))
	if err != nil {
		return "", err
	}
	c.setHeaders(req)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("hubspot upsert request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errText, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("hubspot upsert failed (status %d): %s", resp.StatusCode, string(errText))
	}

	var contact contactResponse
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return "", fmt.Errorf("decode hubspot upsert response: %w", err)
	}
	if contact.ID == "" {
		return "", fmt.Errorf("hubspot upsert response missing contact id")
	}

	return contact.ID, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
