package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/raphaelgruber/sheetvoice/internal/models"
)

// Validate checks a record set against the domain constraints and reports
// every violation at once. It returns nil when the set is valid.
func Validate(records []models.TextRecord) error {
	if len(records) == 0 {
		return &ValidationError{Violations: []Violation{{Kind: ViolationNoRecords}}}
	}

	var (
		seen    = make(map[string]int, len(records))
		order   []string
		empty   []string
		tooLong []string
	)

	for _, r := range records {
		if seen[r.ID] == 0 {
			order = append(order, r.ID)
		}
		seen[r.ID]++
		if strings.TrimSpace(r.Text) == "" {
			empty = append(empty, r.ID)
		} else if utf8.RuneCountInString(r.Text) > models.MaxTextLength {
			tooLong = append(tooLong, r.ID)
		}
	}

	// Each colliding id is reported once, in order of first occurrence.
	var duplicates []string
	for _, id := range order {
		if seen[id] > 1 {
			duplicates = append(duplicates, id)
		}
	}

	var violations []Violation
	if len(duplicates) > 0 {
		violations = append(violations, Violation{Kind: ViolationDuplicateID, IDs: duplicates})
	}
	if len(empty) > 0 {
		violations = append(violations, Violation{Kind: ViolationEmptyText, IDs: empty})
	}
	if len(tooLong) > 0 {
		violations = append(violations, Violation{Kind: ViolationTextTooLong, IDs: tooLong})
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
