// Package remote talks to the table service over HTTP and implements
// attendance.Remote.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"asistencia/internal/attendance"
)

const (
	singleObjectMIME = "application/vnd.pgrst.object+json"
	codeNoSingleRow  = "PGRST116"

	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Error is a non-2xx response from the table service.
type Error struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("table service %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("table service %d: %s", e.Status, e.Message)
}

// Client calls the table service with an access key.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// New creates a client. A zero timeout leaves the transport default.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// FindStudent implements attendance.Remote.
func (c *Client) FindStudent(ctx context.Context, studentID string) (attendance.Student, error) {
	q := url.Values{}
	q.Set("select", "id,name,student_id")
	q.Set("student_id", "eq."+studentID)
	q.Set("limit", "1")
	var s attendance.Student
	err := c.do(ctx, http.MethodGet, "/rest/v1/students", q, nil, &s)
	return s, err
}

// CreateStudent implements attendance.Remote.
func (c *Client) CreateStudent(ctx context.Context, name, studentID string) (attendance.Student, error) {
	body := []map[string]string{{"name": name, "student_id": studentID}}
	var s attendance.Student
	err := c.do(ctx, http.MethodPost, "/rest/v1/students", url.Values{"select": {"id"}}, body, &s)
	return s, err
}

// FindAttendanceBetween implements attendance.Remote.
func (c *Client) FindAttendanceBetween(ctx context.Context, studentKey string, from, before time.Time) (attendance.Record, error) {
	q := url.Values{}
	q.Set("select", "id,student_id,check_in_time")
	q.Set("student_id", "eq."+studentKey)
	q.Add("check_in_time", "gte."+from.UTC().Format(timestampLayout))
	q.Add("check_in_time", "lt."+before.UTC().Format(timestampLayout))
	q.Set("limit", "1")
	var r attendance.Record
	err := c.do(ctx, http.MethodGet, "/rest/v1/attendance_records", q, nil, &r)
	return r, err
}

// CreateAttendance implements attendance.Remote.
func (c *Client) CreateAttendance(ctx context.Context, studentKey string, at time.Time) (attendance.Record, error) {
	body := []map[string]string{{"student_id": studentKey, "check_in_time": at.UTC().Format(timestampLayout)}}
	var r attendance.Record
	err := c.do(ctx, http.MethodPost, "/rest/v1/attendance_records", nil, body, &r)
	return r, err
}

// do sends a single-object request. A PGRST116 response maps to
// attendance.ErrNoRows.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.BaseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.APIKey)
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", singleObjectMIME)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("table service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := &Error{Status: resp.StatusCode}
		if json.Unmarshal(raw, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		if apiErr.Code == codeNoSingleRow {
			return attendance.ErrNoRows
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
