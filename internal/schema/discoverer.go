// Package schema discovers the live field list of the destination table.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ticketrelay/internal/airtable"
	"ticketrelay/internal/domain"
)

// ErrNotFound means the schema is unavailable: the table is missing or the
// metadata read failed. Callers must skip persistence.
var ErrNotFound = errors.New("schema not found")

// TableLister reads the table metadata of a store.
type TableLister interface {
	Tables(ctx context.Context) ([]airtable.Table, error)
}

// Discoverer fetches table schemas. With a zero TTL every Fetch performs one
// metadata read; otherwise results are cached per table for TTL.
type Discoverer struct {
	lister TableLister
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]cachedSchema
}

type cachedSchema struct {
	fields    domain.FieldSchema
	fetchedAt time.Time
}

type Config struct {
	Lister TableLister
	TTL    time.Duration
	Logger *slog.Logger
}

func NewDiscoverer(cfg Config) *Discoverer {
	return &Discoverer{
		lister: cfg.Lister,
		ttl:    cfg.TTL,
		now:    time.Now,
		logger: cfg.Logger,
		cache:  make(map[string]cachedSchema),
	}
}

// Fetch returns the fields of table, matched by name or id. It never retries;
// any failure is logged and reported as ErrNotFound.
func (d *Discoverer) Fetch(ctx context.Context, table string) (domain.FieldSchema, error) {
	if fields, ok := d.cached(table); ok {
		return fields, nil
	}

	tables, err := d.lister.Tables(ctx)
	if err != nil {
		d.logger.Error("error fetching schema", "table", table, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	for _, t := range tables {
		if t.Name != table && t.ID != table {
			continue
		}
		fields := domain.FieldSchema(t.Fields)
		d.logger.Debug("schema fetched", "table", table, "fields", len(fields))
		d.store(table, fields)
		return fields, nil
	}

	d.logger.Warn("table not found in base", "table", table, "tables", len(tables))
	return nil, fmt.Errorf("%w: no table named %q", ErrNotFound, table)
}

// Invalidate drops any cached schema for table.
func (d *Discoverer) Invalidate(table string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.cache, table)
}

func (d *Discoverer) cached(table string) (domain.FieldSchema, bool) {
	if d.ttl <= 0 {
		return nil, false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cache[table]
	if !ok || d.now().Sub(c.fetchedAt) >= d.ttl {
		return nil, false
	}
	return c.fields, true
}

func (d *Discoverer) store(table string, fields domain.FieldSchema) {
	if d.ttl <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache[table] = cachedSchema{fields: fields, fetchedAt: d.now()}
}
