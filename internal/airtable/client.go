// Package airtable talks to the Airtable REST API: it reads table field
// metadata and creates records.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticketrelay/internal/domain"
)

const defaultAPIBase = "https://api.airtable.com/v0"

// APIError is a non-2xx answer from Airtable. Body is the response body verbatim.
type APIError struct {
	StatusCode int
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("airtable %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// Table is one entry of the base metadata listing.
type Table struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Fields []domain.Field `json:"fields"`
}

// CreatedRecord is Airtable's answer to a successful create.
type CreatedRecord struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

// Client is a bearer-authenticated Airtable API client bound to one base.
type Client struct {
	apiBase string
	apiKey  string
	baseID  string
	client  *http.Client
	logger  *slog.Logger
}

type Config struct {
	APIBase string
	APIKey  string
	BaseID  string
	Timeout time.Duration
	Client  *http.Client
	Logger  *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultAPIBase
	}
	if cfg.Client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		cfg.Client = &http.Client{Timeout: timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		apiKey:  cfg.APIKey,
		baseID:  cfg.BaseID,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

// Tables lists every table of the base with its fields.
func (c *Client) Tables(ctx context.Context) ([]Table, error) {
	endpoint := fmt.Sprintf("%s/meta/bases/%s/tables", c.apiBase, url.PathEscape(c.baseID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	var out struct {
		Tables []Table `json:"tables"`
	}
	if err := c.do(req, &out); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return out.Tables, nil
}

// CreateRecord inserts one record into table and returns its identifier.
func (c *Client) CreateRecord(ctx context.Context, table string, fields domain.StoreRecord) (*CreatedRecord, error) {
	body, err := json.Marshal(struct {
		Fields map[string]any `json:"fields"`
	}{Fields: wireFields(fields)})
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/%s", c.apiBase, url.PathEscape(c.baseID), url.PathEscape(table))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var rec CreatedRecord
	if err := c.do(req, &rec); err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}
	return &rec, nil
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: body}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// wireFields replaces non-finite numbers with null, which is how they
// serialize in JSON-native clients; encoding/json refuses them.
func wireFields(fields domain.StoreRecord) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			out[k] = nil
			continue
		}
		out[k] = v
	}
	return out
}

// ErrorBody extracts the verbatim upstream body from err, if it carries one.
func ErrorBody(err error) ([]byte, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Body, true
	}
	return nil, false
}

// ErrorType returns the "error.type" code Airtable puts in error bodies,
// such as UNKNOWN_FIELD_NAME. It is empty when err carries no such code.
func ErrorType(err error) string {
	body, ok := ErrorBody(err)
	if !ok {
		return ""
	}
	var parsed struct {
		Error struct {
			Type string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Error.Type
}
