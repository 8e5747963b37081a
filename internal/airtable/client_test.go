package airtable

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"ticketrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTables(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/meta/bases/app123/tables" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer pat-key" {
			t.Errorf("missing bearer token")
		}
		io.WriteString(w, `{"tables":[{"id":"tbl1","name":"Queries","fields":[
			{"id":"f1","name":"Query Text","type":"multilineText"},
			{"id":"f2","name":"Timestamp","type":"date"}]}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "pat-key", BaseID: "app123", Logger: testLogger()})
	tables, err := c.Tables(context.Background())
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "Queries" || len(tables[0].Fields) != 2 {
		t.Fatalf("unexpected tables: %+v", tables)
	}
	if tables[0].Fields[1].Type != domain.FieldDate {
		t.Fatalf("unexpected field type %q", tables[0].Fields[1].Type)
	}
}

func TestCreateRecord(t *testing.T) {
	var got struct {
		Fields map[string]any `json:"fields"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/app123/Support Queries" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"id":"rec42","createdTime":"2026-10-19T10:00:00.000Z","fields":{}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, APIKey: "k", BaseID: "app123", Logger: testLogger()})
	rec, err := c.CreateRecord(context.Background(), "Support Queries", domain.StoreRecord{
		"Query Text": "hello",
		"Query ID":   math.NaN(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID != "rec42" {
		t.Fatalf("expected rec42, got %q", rec.ID)
	}
	if got.Fields["Query Text"] != "hello" {
		t.Errorf("unexpected fields %+v", got.Fields)
	}
	if v, ok := got.Fields["Query ID"]; !ok || v != nil {
		t.Errorf("NaN should be sent as null, got %v (present=%v)", v, ok)
	}
}

func TestCreateRecord_APIErrorKeepsBody(t *testing.T) {
	const body = `{"error":{"type":"INVALID_VALUE_FOR_COLUMN","message":"Field \"Priority\" cannot accept the provided value"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, body)
	}))
	defer srv.Close()

	c := NewClient(Config{APIBase: srv.URL, BaseID: "app", Logger: testLogger()})
	_, err := c.CreateRecord(context.Background(), "T", domain.StoreRecord{})
	if err == nil {
		t.Fatal("expected error")
	}
	got, ok := ErrorBody(err)
	if !ok {
		t.Fatalf("expected APIError in chain, got %v", err)
	}
	if string(got) != body {
		t.Fatalf("body not kept verbatim: %s", got)
	}
	if ErrorType(err) != "INVALID_VALUE_FOR_COLUMN" {
		t.Errorf("unexpected error type %q", ErrorType(err))
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unknown field", &APIError{StatusCode: 422, Body: []byte(`{"error":{"type":"UNKNOWN_FIELD_NAME","message":"Unknown field name: \"Team\""}}`)}, "UNKNOWN_FIELD_NAME"},
		{"string error", &APIError{StatusCode: 404, Body: []byte(`{"error":"NOT_FOUND"}`)}, ""},
		{"not json", &APIError{StatusCode: 502, Body: []byte("bad gateway")}, ""},
		{"transport", errors.New("connection refused"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorType(tt.err); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
