package record

import (
	"time"

	"ticketrelay/internal/domain"
)

// Destination field names.
const (
	FieldQueryText  = "Query Text"
	FieldStatus     = "Status"
	FieldCategory   = "Category"
	FieldPriority   = "Priority"
	FieldTimestamp  = "Timestamp"
	FieldSource     = "Source"
	FieldUserInfo   = "User Info"
	FieldAssignedTo = "Assigned To"
	FieldQueryID    = "Query ID"
)

// StatusUnresolved is the status of every new ticket.
const StatusUnresolved = "Unresolved"

// Assembler builds store records.
type Assembler struct {
	now func() time.Time
}

func NewAssembler() *Assembler {
	return &Assembler{now: time.Now}
}

// Assemble merges the message and its classification into a record holding
// only fields the schema declares. Undeclared candidates are dropped silently
// so the destination table can gain or lose columns without breaking ingestion.
//
// The Query ID is the current unix second. Two messages ingested in the same
// second get the same id.
func (a *Assembler) Assemble(msg domain.IncomingMessage, c domain.Classification, schema domain.FieldSchema) domain.StoreRecord {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = a.now()
	}

	candidates := map[string]any{
		FieldQueryText:  msg.Text,
		FieldStatus:     StatusUnresolved,
		FieldCategory:   string(c.Category),
		FieldPriority:   string(c.Priority),
		FieldTimestamp:  sentAt.UTC().Format(dayLayout),
		FieldSource:     string(msg.Source),
		FieldUserInfo:   msg.SenderLabel,
		FieldAssignedTo: string(c.Team),
	}
	if schema.Has(FieldQueryID) {
		candidates[FieldQueryID] = a.now().Unix()
	}

	types := schema.Types()
	rec := make(domain.StoreRecord, len(candidates))
	for name, value := range candidates {
		t, declared := types[name]
		if !declared {
			continue
		}
		if formatted := Format(value, t); formatted != nil {
			rec[name] = formatted
		}
	}
	return rec
}
