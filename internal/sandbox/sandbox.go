// Package sandbox runs generated analysis scripts against a fixed namespace.
//
// Every caller goes through Runner. Neither implementation isolates the
// host: StarlarkRunner runs in-process with no file or network builtins,
// PythonRunner runs a host interpreter with full privileges.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

// Warning is shown by the UI and the ask command before anything runs.
const Warning = "This app executes model-generated code locally. Do not use on untrusted multi-user hosts."

// DatasetVar is the reserved binding for the loaded dataset.
const DatasetVar = "df"

// LibraryNames lists the library bindings in namespace order.
var LibraryNames = []string{"pd", "plt", "sns", "px"}

// ErrLimitExceeded reports that a script was stopped by the run timeout.
var ErrLimitExceeded = errors.New("execution time limit exceeded")

// State is the terminal state of a run.
type State string

const (
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Binding is one name in the script namespace. In a Params namespace a
// library name with a nil Value asks the runner for its own module, and a
// *dataset.Frame value is wrapped as the runner's data frame type.
type Binding struct {
	Name  string
	Value any
}

// Params describes one run.
type Params struct {
	Code      string
	Namespace []Binding
	// Figures receives figures created during the run. A nil registry
	// discards them.
	Figures *figure.Registry
}

// Outcome is the result of a run. Failed outcomes carry nil Bindings.
type Outcome struct {
	State    State
	Bindings []Binding
	Output   string
	Err      *ScriptError
	Duration time.Duration
}

// Failed reports whether the run failed.
func (o Outcome) Failed() bool { return o.State == StateFailed }

// ScriptError locates a script failure. Line and Column are 1-based and
// zero when unknown.
type ScriptError struct {
	Message string
	Line    int
	Column  int
	Cause   error
}

func (e *ScriptError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d:%d: %s", e.Line, e.Column, e.Message)
	}
	return e.Message
}

func (e *ScriptError) Unwrap() error { return e.Cause }

// Runner executes untrusted analysis code.
type Runner interface {
	Run(ctx context.Context, p Params) Outcome
}

// Namespace returns the standard bindings: the libraries followed by the
// dataset.
func Namespace(ds *dataset.Frame) []Binding {
	ns := make([]Binding, 0, len(LibraryNames)+1)
	for _, n := range LibraryNames {
		ns = append(ns, Binding{Name: n})
	}
	return append(ns, Binding{Name: DatasetVar, Value: ds})
}

// Lookup returns the value bound to name.
func Lookup(bindings []Binding, name string) (any, bool) {
	for _, b := range bindings {
		if b.Name == name {
			return b.Value, true
		}
	}
	return nil, false
}

func failed(output string, err *ScriptError) Outcome {
	return Outcome{State: StateFailed, Output: output, Err: err}
}

// withTimeout applies d when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// limitError maps a finished context to ErrLimitExceeded or its own error.
func limitError(ctx context.Context, timeout time.Duration) *ScriptError {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ScriptError{Message: fmt.Sprintf("script stopped after %s", timeout), Cause: ErrLimitExceeded}
	}
	return &ScriptError{Message: "script cancelled", Cause: ctx.Err()}
}

// output collects print lines from a script. Writes may come from more
// than one goroutine when stdout and stderr are captured separately.
type output struct {
	mu sync.Mutex
	b  strings.Builder
}

func (o *output) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.Write(p)
}

func (o *output) line(s string) {
	o.mu.Lock()
	o.b.WriteString(s)
	o.b.WriteByte('\n')
	o.mu.Unlock()
}

func (o *output) String() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.b.String()
}
