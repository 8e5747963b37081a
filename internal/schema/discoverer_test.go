package schema

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"ticketrelay/internal/airtable"
	"ticketrelay/internal/domain"
)

type fakeLister struct {
	tables []airtable.Table
	err    error
	calls  int
}

func (f *fakeLister) Tables(ctx context.Context) ([]airtable.Table, error) {
	f.calls++
	return f.tables, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func queriesTable() []airtable.Table {
	return []airtable.Table{
		{ID: "tblA", Name: "Other"},
		{ID: "tblQ", Name: "Queries", Fields: []domain.Field{
			{Name: "Query Text", Type: domain.FieldText},
			{Name: "Timestamp", Type: domain.FieldDate},
		}},
	}
}

func TestFetch_ByNameAndID(t *testing.T) {
	d := NewDiscoverer(Config{Lister: &fakeLister{tables: queriesTable()}, Logger: testLogger()})

	for _, key := range []string{"Queries", "tblQ"} {
		fields, err := d.Fetch(context.Background(), key)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", key, err)
		}
		if len(fields) != 2 || !fields.Has("Timestamp") {
			t.Fatalf("%s: unexpected fields %+v", key, fields)
		}
	}
}

func TestFetch_TableMissing(t *testing.T) {
	d := NewDiscoverer(Config{Lister: &fakeLister{tables: queriesTable()}, Logger: testLogger()})
	_, err := d.Fetch(context.Background(), "Nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFetch_ReadFailureIsNotFound(t *testing.T) {
	lister := &fakeLister{err: &airtable.APIError{StatusCode: 401, Body: []byte(`{"error":"AUTHENTICATION_REQUIRED"}`)}}
	d := NewDiscoverer(Config{Lister: lister, Logger: testLogger()})
	_, err := d.Fetch(context.Background(), "Queries")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if lister.calls != 1 {
		t.Fatalf("expected exactly one read, got %d", lister.calls)
	}
}

func TestFetch_NoCacheByDefault(t *testing.T) {
	lister := &fakeLister{tables: queriesTable()}
	d := NewDiscoverer(Config{Lister: lister, Logger: testLogger()})
	for i := 0; i < 3; i++ {
		if _, err := d.Fetch(context.Background(), "Queries"); err != nil {
			t.Fatal(err)
		}
	}
	if lister.calls != 3 {
		t.Fatalf("expected one read per fetch, got %d", lister.calls)
	}
}

func TestFetch_CacheHonoursTTL(t *testing.T) {
	lister := &fakeLister{tables: queriesTable()}
	d := NewDiscoverer(Config{Lister: lister, TTL: time.Minute, Logger: testLogger()})
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	d.Fetch(context.Background(), "Queries")
	d.Fetch(context.Background(), "Queries")
	if lister.calls != 1 {
		t.Fatalf("expected cached second fetch, got %d reads", lister.calls)
	}

	now = now.Add(time.Minute)
	d.Fetch(context.Background(), "Queries")
	if lister.calls != 2 {
		t.Fatalf("expected refetch after TTL, got %d reads", lister.calls)
	}

	d.Invalidate("Queries")
	d.Fetch(context.Background(), "Queries")
	if lister.calls != 3 {
		t.Fatalf("expected refetch after invalidate, got %d reads", lister.calls)
	}
}
