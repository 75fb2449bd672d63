package errors

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// ColumnMappingError reports a configured column that the input table does not contain.
func ColumnMappingError(side, role, column string, available []string) *ReconcilerError {
	message := fmt.Sprintf("%s side: column '%s' configured as %s was not found", side, column, role)

	suggestion := "choose one of the table's columns or clear the setting"
	if similar := similarColumns(column, available); len(similar) > 0 {
		suggestion = fmt.Sprintf("did you mean %s?", strings.Join(similar, ", "))
	}

	return New(CategoryConfiguration, CodeMissingColumn, message).
		WithSuggestion(suggestion).
		WithContext("side", side).
		WithContext("role", role).
		WithContext("column", column)
}

// CombineMappingErrors folds every error held by err (built with multierr.Append)
// into one configuration error. A single error is returned as is.
func CombineMappingErrors(err error) *ReconcilerError {
	errs := multierr.Errors(err)
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return WrapIfNeeded(errs[0], CategoryConfiguration, CodeInvalidConfig, errs[0].Error())
	}

	lines := make([]string, 0, len(errs))
	details := make([]*ReconcilerError, 0, len(errs))
	for _, e := range errs {
		lines = append(lines, e.Error())
		details = append(details, WrapIfNeeded(e, CategoryConfiguration, CodeInvalidConfig, e.Error()))
	}

	return Wrap(err, CategoryConfiguration, CodeMissingColumn,
		fmt.Sprintf("%d column mapping problems: %s", len(errs), strings.Join(lines, "; "))).
		WithSuggestion("fix the column mapping of both sides before running").
		WithContext("problems", NewErrorSummary(details).Total)
}

// FormatMappingErrorsForUser renders the problems held by err as a numbered list.
func FormatMappingErrorsForUser(err error) string {
	errs := multierr.Errors(err)
	if len(errs) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d column mapping problem(s):\n", len(errs))
	for i, e := range errs {
		fmt.Fprintf(&b, "  %d. %v\n", i+1, e)
	}
	return b.String()
}

func similarColumns(column string, available []string) []string {
	needle := strings.ToLower(strings.TrimSpace(column))
	if needle == "" {
		return nil
	}

	var out []string
	for _, candidate := range available {
		c := strings.ToLower(strings.TrimSpace(candidate))
		if c != "" && (c == needle || strings.Contains(c, needle) || strings.Contains(needle, c)) {
			out = append(out, candidate)
		}
		if len(out) == 3 {
			break
		}
	}
	return out
}
