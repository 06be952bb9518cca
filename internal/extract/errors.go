package extract

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// FormatError reports a document whose tabular structure could not be located.
type FormatError struct {
	Name   string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Name == "" {
		return "invalid document format: " + e.Reason
	}
	return fmt.Sprintf("invalid document format (%s): %s", e.Name, e.Reason)
}

// ViolationKind classifies a validation failure.
type ViolationKind string

const (
	ViolationNoRecords   ViolationKind = "no_records"
	ViolationDuplicateID ViolationKind = "duplicate_id"
	ViolationEmptyText   ViolationKind = "empty_text"
	ViolationTextTooLong ViolationKind = "text_too_long"
)

// Violation groups the record ids that broke one rule.
type Violation struct {
	Kind ViolationKind
	IDs  []string
}

func (v Violation) String() string {
	switch v.Kind {
	case ViolationNoRecords:
		return "No valid data found. Make sure the document has 'id' and 'text' columns with data"
	case ViolationDuplicateID:
		return fmt.Sprintf("Duplicate IDs found: %s. Each ID must be unique", strings.Join(v.IDs, ", "))
	case ViolationEmptyText:
		return fmt.Sprintf("Empty text found for IDs: %s", strings.Join(v.IDs, ", "))
	case ViolationTextTooLong:
		return fmt.Sprintf("Text too long for IDs: %s. Maximum %d characters per text",
			strings.Join(v.IDs, ", "), models.MaxTextLength)
	default:
		return string(v.Kind)
	}
}

// ValidationError lists every violation found in an extracted record set.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// IDs returns the offending ids for a violation kind, or nil.
func (e *ValidationError) IDs(kind ViolationKind) []string {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return v.IDs
		}
	}
	return nil
}
