// Package classify infers the category, priority and owning team of a
// support message. Classifiers never fail outward: whatever goes wrong, the
// caller receives a fully populated classification.
package classify

import (
	"context"
	"fmt"
	"strings"

	"ticketrelay/internal/domain"
)

// Classifier maps free text to a classification triple.
type Classifier interface {
	Classify(ctx context.Context, text string) Outcome
}

// Outcome is the result of one classification. Result is always complete.
// Err is non-nil when some or all fields were replaced by their fallback.
type Outcome struct {
	Result domain.Classification
	Err    error
}

// Fallback reports whether any field of the result came from a fallback.
func (o Outcome) Fallback() bool { return o.Err != nil }

// InvalidFieldsError lists the fields of a model answer that were outside
// their closed set and were replaced.
type InvalidFieldsError struct {
	Fields []string
}

func (e *InvalidFieldsError) Error() string {
	return fmt.Sprintf("invalid classification fields: %s", strings.Join(e.Fields, ", "))
}
