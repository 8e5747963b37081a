package domain

// FieldType is the declared type of a destination field.
type FieldType string

const (
	FieldDate         FieldType = "date"
	FieldNumber       FieldType = "number"
	FieldCheckbox     FieldType = "checkbox"
	FieldSingleSelect FieldType = "singleSelect"
	FieldText         FieldType = "singleLineText"
)

// Field is one column of the destination table.
type Field struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
}

// FieldSchema is the live field list of a destination table.
type FieldSchema []Field

// Types indexes the schema by field name.
func (s FieldSchema) Types() map[string]FieldType {
	out := make(map[string]FieldType, len(s))
	for _, f := range s {
		out[f.Name] = f.Type
	}
	return out
}

// Has reports whether the schema declares a field called name.
func (s FieldSchema) Has(name string) bool {
	for _, f := range s {
		if f.Name == name {
			return true
		}
	}
	return false
}

// StoreRecord maps field names to formatted values. Keys are always declared
// by the schema the record was assembled against.
type StoreRecord map[string]any
