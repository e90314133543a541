// Package prompt composes the instruction sent to the model for one query.
package prompt

import (
	"fmt"
	"strings"
)

// DatasetVar is the reserved name the dataset is bound to during execution.
const DatasetVar = "df"

// DefaultQuery is offered when the user has not typed a question.
const DefaultQuery = "Group by class or category and compare averages."

// Input carries everything the prompt depends on.
type Input struct {
	Query       string
	DatasetName string
	// Schema is an optional "column: kind" listing.
	Schema string
	// DialectNotes lists constraints of the script runner in use.
	DialectNotes []string
}

// System renders the fixed instruction block for a dataset.
func System(in Input) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful Python data scientist and visualization expert. You are given a dataset named '%s'.\n", in.DatasetName)
	fmt.Fprintf(&b, "Write clean, runnable Python code that uses the DataFrame variable '%s' already loaded in memory.\n", DatasetVar)
	b.WriteString("Use pandas (pd), matplotlib (plt) / seaborn (sns), or plotly express (px) for analysis and visualization.\n")
	b.WriteString("Wrap only the Python code in exactly one fenced block like:\n```python\n# code here\n```\n")
	fmt.Fprintf(&b, "Do not reload the CSV from disk; use '%s' directly.\n", DatasetVar)
	b.WriteString("Assign tables and figures you want displayed to named variables, and print short findings.\n")
	b.WriteString("Do not include long explanations; return runnable code in the code block.")
	if s := strings.TrimSpace(in.Schema); s != "" {
		b.WriteString("\n\n[DATASET SCHEMA]\n")
		b.WriteString(s)
	}
	if len(in.DialectNotes) > 0 {
		b.WriteString("\n\n[RUNTIME NOTES]\n")
		for _, n := range in.DialectNotes {
			b.WriteString("- ")
			b.WriteString(n)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Build returns the full prompt: system block, blank line, then the query.
// An empty query falls back to DefaultQuery.
func Build(in Input) string {
	q := strings.TrimSpace(in.Query)
	if q == "" {
		q = DefaultQuery
	}
	return System(in) + "\n\nUser query: " + q
}
