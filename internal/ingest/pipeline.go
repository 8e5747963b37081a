// Package ingest runs one ingestion attempt: classify the message, discover
// the destination schema, assemble the record, write it once, and produce
// the acknowledgment for the sender. It knows nothing about transports.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"ticketrelay/internal/airtable"
	"ticketrelay/internal/audit"
	"ticketrelay/internal/classify"
	"ticketrelay/internal/domain"
	"ticketrelay/internal/metrics"
	"ticketrelay/internal/record"
	"ticketrelay/internal/schema"
)

// SchemaMissing is the error detail sent when the destination schema is unavailable.
const SchemaMissing = "Schema not found"

// SchemaSource reads the live field schema of a table.
type SchemaSource interface {
	Fetch(ctx context.Context, table string) (domain.FieldSchema, error)
}

// schemaInvalidator is implemented by schema sources that cache.
type schemaInvalidator interface {
	Invalidate(table string)
}

// RecordWriter creates one record in a table.
type RecordWriter interface {
	CreateRecord(ctx context.Context, table string, fields domain.StoreRecord) (*airtable.CreatedRecord, error)
}

// Ledger keeps a local trace of ingestion attempts.
type Ledger interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Config struct {
	Classifier classify.Classifier
	Schemas    SchemaSource
	Store      RecordWriter
	Table      string
	Ledger     Ledger // optional
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Pipeline struct {
	classifier classify.Classifier
	schemas    SchemaSource
	store      RecordWriter
	table      string
	assembler  *record.Assembler
	ledger     Ledger
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier: cfg.Classifier,
		schemas:    cfg.Schemas,
		store:      cfg.Store,
		table:      cfg.Table,
		assembler:  record.NewAssembler(),
		ledger:     cfg.Ledger,
		metrics:    cfg.Metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// Handle parses a raw frame and processes it.
func (p *Pipeline) Handle(ctx context.Context, raw []byte) domain.Acknowledgment {
	return p.Process(ctx, ParsePayload(raw, p.now()))
}

// Process runs one ingestion attempt to completion. It always returns an
// acknowledgment; failures are scoped to this message.
func (p *Pipeline) Process(ctx context.Context, msg domain.IncomingMessage) domain.Acknowledgment {
	start := p.now()

	var (
		wg        sync.WaitGroup
		outcome   classify.Outcome
		fields    domain.FieldSchema
		schemaErr error
	)
	wg.Go(func() { outcome = p.classifier.Classify(ctx, msg.Text) })
	wg.Go(func() { fields, schemaErr = p.schemas.Fetch(ctx, p.table) })
	wg.Wait()

	if outcome.Fallback() {
		p.logger.Debug("classification fell back", "err", outcome.Err)
		p.metrics.ClassifierFallback(fallbackReason(outcome.Err))
	}

	var ack domain.Acknowledgment
	if schemaErr != nil {
		if !errors.Is(schemaErr, schema.ErrNotFound) {
			p.logger.Error("schema discovery failed", "table", p.table, "err", schemaErr)
		}
		p.metrics.SchemaMiss()
		ack = domain.ErrorAck(SchemaMissing)
	} else {
		ack = p.write(ctx, p.assembler.Assemble(msg, outcome.Result, fields))
	}

	elapsed := p.now().Sub(start)
	p.metrics.Ingestion(string(msg.Source), string(ack.Status), elapsed)
	p.trace(ctx, msg, outcome, ack, elapsed)
	return ack
}

func (p *Pipeline) write(ctx context.Context, rec domain.StoreRecord) domain.Acknowledgment {
	created, err := p.store.CreateRecord(ctx, p.table, rec)
	if err != nil {
		if body, ok := airtable.ErrorBody(err); ok {
			p.logger.Error("store rejected record", "err", err)
			if airtable.ErrorType(err) == "UNKNOWN_FIELD_NAME" {
				p.invalidateSchema()
			}
			return domain.RawErrorAck(body)
		}
		p.logger.Error("store write failed", "err", err)
		return domain.ErrorAck(err.Error())
	}
	p.logger.Info("record stored", "id", created.ID, "fields", len(rec))
	return domain.SuccessAck(created.ID)
}

// invalidateSchema drops a cached schema that no longer matches the table.
func (p *Pipeline) invalidateSchema() {
	if inv, ok := p.schemas.(schemaInvalidator); ok {
		p.logger.Info("schema cache invalidated", "table", p.table)
		inv.Invalidate(p.table)
	}
}

func (p *Pipeline) trace(ctx context.Context, msg domain.IncomingMessage, o classify.Outcome, ack domain.Acknowledgment, elapsed time.Duration) {
	if p.ledger == nil {
		return
	}
	entry := audit.Entry{
		Source:    string(msg.Source),
		Sender:    msg.SenderLabel,
		Text:      msg.Text,
		Category:  string(o.Result.Category),
		Priority:  string(o.Result.Priority),
		Team:      string(o.Result.Team),
		Fallback:  o.Fallback(),
		Status:    string(ack.Status),
		RecordID:  ack.StoreRecordID,
		Duration:  elapsed,
		CreatedAt: p.now(),
	}
	if ack.Status == domain.AckError {
		entry.Error = ack.ErrorText()
	}
	// The ledger is local bookkeeping; a failed insert must not change the ack.
	if err := p.ledger.Record(context.WithoutCancel(ctx), entry); err != nil {
		p.logger.Warn("audit record failed", "err", err)
	}
}

func fallbackReason(err error) string {
	var invalid *classify.InvalidFieldsError
	if errors.As(err, &invalid) {
		return "invalid_fields"
	}
	return "error"
}
