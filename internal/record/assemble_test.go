package record

import (
	"math/rand"
	"testing"
	"time"

	"ticketrelay/internal/domain"
)

func fullSchema() domain.FieldSchema {
	return domain.FieldSchema{
		{Name: FieldQueryText, Type: "multilineText"},
		{Name: FieldStatus, Type: domain.FieldSingleSelect},
		{Name: FieldCategory, Type: domain.FieldSingleSelect},
		{Name: FieldPriority, Type: domain.FieldSingleSelect},
		{Name: FieldTimestamp, Type: domain.FieldDate},
		{Name: FieldSource, Type: domain.FieldSingleSelect},
		{Name: FieldUserInfo, Type: domain.FieldText},
		{Name: FieldAssignedTo, Type: domain.FieldSingleSelect},
		{Name: FieldQueryID, Type: domain.FieldNumber},
	}
}

func testMessage() domain.IncomingMessage {
	return domain.IncomingMessage{
		Text:        "urgent: can't login",
		SenderLabel: "@alice",
		Source:      domain.SourceChat,
		SentAt:      time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC),
	}
}

func fixedAssembler(now time.Time) *Assembler {
	a := NewAssembler()
	a.now = func() time.Time { return now }
	return a
}

func TestAssemble_FullSchema(t *testing.T) {
	now := time.Unix(1760862600, 0)
	a := fixedAssembler(now)
	c := domain.Classification{Category: domain.CategoryLoginIssue, Priority: domain.PriorityHigh, Team: domain.TeamGeneral}

	rec := a.Assemble(testMessage(), c, fullSchema())

	want := domain.StoreRecord{
		FieldQueryText:  "urgent: can't login",
		FieldStatus:     "Unresolved",
		FieldCategory:   "Login Issue",
		FieldPriority:   "High",
		FieldTimestamp:  "2026-10-19",
		FieldSource:     "Telegram",
		FieldUserInfo:   "@alice",
		FieldAssignedTo: "General",
		FieldQueryID:    float64(1760862600),
	}
	if len(rec) != len(want) {
		t.Fatalf("got %d fields, want %d: %+v", len(rec), len(want), rec)
	}
	for k, v := range want {
		if rec[k] != v {
			t.Errorf("%s = %#v, want %#v", k, rec[k], v)
		}
	}
}

func TestAssemble_QueryIDOnlyWhenDeclared(t *testing.T) {
	a := NewAssembler()
	schema := domain.FieldSchema{{Name: FieldQueryText, Type: domain.FieldText}}
	rec := a.Assemble(testMessage(), domain.FallbackClassification(), schema)
	if _, ok := rec[FieldQueryID]; ok {
		t.Fatal("Query ID must not be generated when the schema lacks it")
	}
	if len(rec) != 1 {
		t.Fatalf("expected only Query Text, got %+v", rec)
	}
}

func TestAssemble_ZeroSentAtUsesNow(t *testing.T) {
	a := fixedAssembler(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC))
	msg := testMessage()
	msg.SentAt = time.Time{}
	rec := a.Assemble(msg, domain.FallbackClassification(), domain.FieldSchema{{Name: FieldTimestamp, Type: domain.FieldDate}})
	if rec[FieldTimestamp] != "2026-03-04" {
		t.Fatalf("unexpected timestamp %v", rec[FieldTimestamp])
	}
}

func TestAssemble_DropsUnformattableValues(t *testing.T) {
	a := NewAssembler()
	// "User Info" declared as a date cannot hold a handle; the field is omitted.
	schema := domain.FieldSchema{{Name: FieldUserInfo, Type: domain.FieldDate}}
	rec := a.Assemble(testMessage(), domain.FallbackClassification(), schema)
	if len(rec) != 0 {
		t.Fatalf("expected empty record, got %+v", rec)
	}
}

func TestAssemble_NeverAddsUndeclaredKeys(t *testing.T) {
	names := []string{
		FieldQueryText, FieldStatus, FieldCategory, FieldPriority, FieldTimestamp,
		FieldSource, FieldUserInfo, FieldAssignedTo, FieldQueryID, "Notes", "Attachments",
	}
	types := []domain.FieldType{domain.FieldDate, domain.FieldNumber, domain.FieldCheckbox, domain.FieldSingleSelect, domain.FieldText}

	rng := rand.New(rand.NewSource(1))
	a := NewAssembler()
	for i := 0; i < 500; i++ {
		var schema domain.FieldSchema
		for _, n := range names {
			if rng.Intn(2) == 0 {
				schema = append(schema, domain.Field{Name: n, Type: types[rng.Intn(len(types))]})
			}
		}
		rec := a.Assemble(testMessage(), domain.FallbackClassification(), schema)
		for k := range rec {
			if !schema.Has(k) {
				t.Fatalf("iteration %d: key %q not in schema %+v", i, k, schema)
			}
		}
	}
}
