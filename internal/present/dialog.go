// Package present turns workflow state into terminal output: one remediation dialog per
// error outcome and one renderer per tool result shape.
package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/KaramelBytes/analytica-cli/internal/outcome"
	"github.com/KaramelBytes/analytica-cli/internal/tools"
)

// Dialog is the modal shown for an error outcome. Dismissing it returns the workflow to
// configuration.
type Dialog struct {
	Title        string
	Explanation  string
	Remediation  string
	DismissLabel string
}

const dismissLabel = "Back to configuration"

// DialogFor returns the dialog of an error outcome; ok is false for Success. toolID only
// sharpens the remediation text.
func DialogFor(o outcome.Outcome, toolID string) (d Dialog, ok bool) {
	d.DismissLabel = dismissLabel
	switch v := o.(type) {
	case outcome.InsufficientDataPoints:
		d.Title = "Not enough data points"
		d.Explanation = fmt.Sprintf("This analysis needs at least %d data points and the selected data has fewer.", v.RequiredCount)
		d.Remediation = "Reduce the period parameter or upload a file with more history."
		if toolID != tools.TimeSeries {
			d.Remediation = "Select columns with fewer missing values or upload a larger file."
		}
	case outcome.UnparsableDate:
		d.Title = "Dates could not be read"
		d.Explanation = "The selected date column contains values that are not recognizable dates."
		d.Remediation = "Choose the column that holds dates, or fix its format (for example 2024-01-31) and upload again."
	case outcome.HighCardinalityTarget:
		d.Title = "Too many categories"
		col := v.TargetColumn
		if col == "" {
			col = "the selected column"
		} else {
			col = fmt.Sprintf("%q", col)
		}
		d.Explanation = fmt.Sprintf("Column %s has %d distinct values, which looks like an identifier rather than a category.", col, v.ClassCount)
		d.Remediation = "Choose a more general target column (for example region instead of city)."
		if toolID == tools.Pivot {
			d.Remediation = "Use a column with fewer categories as row or column dimension."
		}
	case outcome.IncompatibleColumnType:
		d.Title = "Column type not supported here"
		d.Explanation = fmt.Sprintf("Column %q was detected as %s, which this analysis cannot use in that role.", v.Column, describeDType(v.DetectedType))
		d.Remediation = "Pick a column of the expected type."
		if toolID == tools.Pivot {
			d.Remediation = "Numeric columns belong in the values slot; use text columns as row and column dimensions."
		}
	case outcome.ValidationError:
		d.Title = "The analysis rejected the input"
		d.Explanation = v.Message
		d.Remediation = "Review the selected columns and parameters."
		switch toolID {
		case tools.TTest:
			d.Remediation = "A t-test compares exactly 2 groups; choose a group column with two categories or use ANOVA."
		case tools.Anova:
			d.Remediation = "ANOVA needs 3 or more groups; for two groups use the t-test."
		}
	case outcome.Unknown:
		d.Title = "Unexpected response"
		d.Explanation = "The analysis service answered with a result this client does not recognize."
		d.Remediation = "Try again; if it persists, check that the service version matches this client."
	default:
		return Dialog{}, false
	}
	if m := outcome.Message(o); m != "" && d.Explanation != m {
		if _, isUnknown := o.(outcome.Unknown); !isUnknown {
			d.Explanation += "\nService message: " + m
		}
	}
	return d, true
}

func describeDType(dt string) string {
	switch {
	case dt == "object":
		return "text"
	case strings.HasPrefix(dt, "int"), strings.HasPrefix(dt, "float"):
		return "numeric (" + dt + ")"
	case strings.HasPrefix(dt, "datetime"):
		return "date"
	case dt == "":
		return "an unknown type"
	}
	return dt
}

// WriteDialog prints d as a boxed block.
func WriteDialog(w io.Writer, d Dialog) {
	fmt.Fprintf(w, "✗ %s\n", d.Title)
	for _, line := range strings.Split(d.Explanation, "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
	fmt.Fprintf(w, "  → %s\n", d.Remediation)
	fmt.Fprintf(w, "  [%s]\n", d.DismissLabel)
}
