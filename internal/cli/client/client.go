// Package client is a thin HTTP client for the seccore API, used by the
// secctl command.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/telhawk-systems/seccore/internal/models"
)

type SecurityClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewSecurityClient(baseURL, token string) *SecurityClient {
	return &SecurityClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *SecurityClient) do(method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewBuffer(b)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.client.Do(req)
}

func errorFromResponse(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(bodyBytes, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
}

// CheckResult mirrors the limits/check response.
type CheckResult struct {
	Allowed           bool   `json:"allowed"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
	Message           string `json:"message,omitempty"`
}

func (c *SecurityClient) CheckLimit(identifier, action string) (*CheckResult, error) {
	resp, err := c.do("POST", "/api/v1/limits/check", map[string]string{
		"identifier": identifier,
		"action":     action,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return nil, errorFromResponse(resp)
	}

	var result CheckResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *SecurityClient) ResetLimit(identifier, action string) error {
	resp, err := c.do("POST", "/api/v1/limits/reset", map[string]string{
		"identifier": identifier,
		"action":     action,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	return nil
}

func auditQuery(filter *models.AuditFilter) url.Values {
	q := url.Values{}
	if filter.UserID != "" {
		q.Set("user_id", filter.UserID)
	}
	if filter.Action != "" {
		q.Set("action", string(filter.Action))
	}
	if filter.StartDate != nil {
		q.Set("start_date", filter.StartDate.Format(time.RFC3339))
	}
	if filter.EndDate != nil {
		q.Set("end_date", filter.EndDate.Format(time.RFC3339))
	}
	if filter.Page > 0 {
		q.Set("page", fmt.Sprintf("%d", filter.Page))
	}
	if filter.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", filter.Limit))
	}
	return q
}

func (c *SecurityClient) QueryAudit(filter *models.AuditFilter) (*models.AuditPage, error) {
	resp, err := c.do("GET", "/api/v1/audit/events?"+auditQuery(filter).Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var page models.AuditPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *SecurityClient) ExportAudit(filter *models.AuditFilter, format string) (string, error) {
	q := auditQuery(filter)
	q.Set("format", format)

	resp, err := c.do("GET", "/api/v1/audit/export?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", errorFromResponse(resp)
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func (c *SecurityClient) ListSessions() ([]*models.SessionInfo, error) {
	resp, err := c.do("GET", "/api/v1/sessions", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errorFromResponse(resp)
	}

	var result struct {
		Sessions []*models.SessionInfo `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result.Sessions, nil
}

func (c *SecurityClient) RevokeSession(sessionID string) error {
	resp, err := c.do("DELETE", "/api/v1/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return errorFromResponse(resp)
	}
	return nil
}

func (c *SecurityClient) RevokeOtherSessions() (int, error) {
	resp, err := c.do("POST", "/api/v1/sessions/revoke-others", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, errorFromResponse(resp)
	}

	var result struct {
		RevokedCount int `json:"revoked_count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, err
	}
	return result.RevokedCount, nil
}
