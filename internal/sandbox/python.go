package sandbox

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
)

//go:embed harness.py
var harnessSource []byte

// PythonRunner runs scripts with a host Python interpreter that has
// pandas, matplotlib, seaborn and plotly installed. Scripts run with the
// privileges of the current user.
type PythonRunner struct {
	// Python is the interpreter path; python3 when empty.
	Python  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewPythonRunner returns a runner for the given interpreter.
func NewPythonRunner(python string, logger *zap.Logger) *PythonRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PythonRunner{Python: python, Logger: logger}
}

// DialectNotes is empty: scripts run as regular Python.
func (r *PythonRunner) DialectNotes() []string { return nil }

// ChartHTML is an interactive chart rendered by the host interpreter.
type ChartHTML string

func (c ChartHTML) ToHTML() (string, error) { return string(c), nil }

// TableValue is a data frame or series returned by the host interpreter.
type TableValue struct{ Frame *dataset.Frame }

func (t TableValue) Table() (*dataset.Frame, error) { return t.Frame, nil }

type harnessResult struct {
	OK    bool `json:"ok"`
	Error *struct {
		Message   string `json:"message"`
		Line      int    `json:"line"`
		Column    int    `json:"column"`
		Traceback string `json:"traceback"`
	} `json:"error"`
	Bindings []struct {
		Name  string `json:"name"`
		Kind  string `json:"kind"`
		Repr  string `json:"repr"`
		HTML  string `json:"html"`
		Table *struct {
			Columns []string `json:"columns"`
			Rows    [][]any  `json:"rows"`
		} `json:"table"`
	} `json:"bindings"`
	Figures []struct {
		Title string `json:"title"`
		Path  string `json:"path"`
	} `json:"figures"`
}

func (r *PythonRunner) interpreter() string {
	if r.Python != "" {
		return r.Python
	}
	return "python3"
}

func (r *PythonRunner) log() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *PythonRunner) Run(ctx context.Context, p Params) (out Outcome) {
	start := time.Now()
	buf := &output{}
	defer func() {
		if rec := recover(); rec != nil {
			r.log().Error("python runner panic", zap.Any("panic", rec))
			out = failed(buf.String(), &ScriptError{Message: fmt.Sprintf("internal error: %v", rec)})
		}
		out.Duration = time.Since(start)
	}()

	ds, err := pythonDataset(p.Namespace)
	if err != nil {
		return failed("", &ScriptError{Message: err.Error()})
	}
	dir, err := os.MkdirTemp("", "vizloom-run-*")
	if err != nil {
		return failed("", &ScriptError{Message: fmt.Sprintf("create work dir: %v", err), Cause: err})
	}
	defer os.RemoveAll(dir)

	if err := writeCSV(filepath.Join(dir, "data.csv"), ds); err != nil {
		return failed("", &ScriptError{Message: err.Error(), Cause: err})
	}
	harness := filepath.Join(dir, "harness.py")
	if err := os.WriteFile(harness, harnessSource, 0o600); err != nil {
		return failed("", &ScriptError{Message: fmt.Sprintf("write harness: %v", err), Cause: err})
	}
	if err := os.WriteFile(filepath.Join(dir, "script.py"), []byte(p.Code), 0o600); err != nil {
		return failed("", &ScriptError{Message: fmt.Sprintf("write script: %v", err), Cause: err})
	}

	runCtx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, r.interpreter(), "-u", harness, dir)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "MPLBACKEND=Agg", "PYTHONIOENCODING=utf-8")
	cmd.Stdout = buf
	cmd.Stderr = buf
	r.log().Debug("starting python", zap.String("python", r.interpreter()), zap.String("dir", dir))
	runErr := cmd.Run()
	if runCtx.Err() != nil {
		r.log().Warn("script stopped", zap.Duration("timeout", r.Timeout), zap.Error(runCtx.Err()))
		return failed(buf.String(), limitError(runCtx, r.Timeout))
	}

	raw, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if err != nil {
		msg := "python harness produced no result"
		if runErr != nil {
			msg = fmt.Sprintf("%s: %v", r.interpreter(), runErr)
		}
		return failed(buf.String(), &ScriptError{Message: msg, Cause: errors.Join(runErr, err)})
	}
	var res harnessResult
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&res); err != nil {
		return failed(buf.String(), &ScriptError{Message: fmt.Sprintf("decode harness result: %v", err), Cause: err})
	}
	if !res.OK {
		se := &ScriptError{Message: "script failed"}
		if res.Error != nil {
			se.Message, se.Line, se.Column = res.Error.Message, res.Error.Line, res.Error.Column
			r.log().Debug("script failed", zap.String("error", se.Message), zap.String("traceback", res.Error.Traceback))
		}
		return failed(buf.String(), se)
	}

	for _, fig := range res.Figures {
		data, err := os.ReadFile(fig.Path)
		if err != nil {
			r.log().Warn("missing figure", zap.String("path", fig.Path), zap.Error(err))
			continue
		}
		if p.Figures != nil {
			p.Figures.Add(figure.Image{Title: fig.Title, Data: data})
		}
	}

	bindings := make([]Binding, 0, len(res.Bindings))
	for _, b := range res.Bindings {
		switch b.Kind {
		case "chart":
			bindings = append(bindings, Binding{Name: b.Name, Value: ChartHTML(b.HTML)})
		case "table":
			if b.Table == nil {
				continue
			}
			f, err := tableFrame(b.Name, b.Table.Columns, b.Table.Rows)
			if err != nil {
				r.log().Warn("bad table from harness", zap.String("name", b.Name), zap.Error(err))
				bindings = append(bindings, Binding{Name: b.Name, Value: b.Repr})
				continue
			}
			bindings = append(bindings, Binding{Name: b.Name, Value: TableValue{Frame: f}})
		default:
			bindings = append(bindings, Binding{Name: b.Name, Value: b.Repr})
		}
	}
	return Outcome{State: StateSucceeded, Bindings: bindings, Output: buf.String()}
}

// pythonDataset checks the namespace and returns the dataset to export.
func pythonDataset(ns []Binding) (*dataset.Frame, error) {
	var ds *dataset.Frame
	for _, b := range ns {
		switch {
		case b.Name == DatasetVar:
			f, ok := b.Value.(*dataset.Frame)
			if !ok || f == nil {
				return nil, fmt.Errorf("binding %q must be a dataset", b.Name)
			}
			ds = f
		case b.Value == nil && contains(LibraryNames, b.Name):
		default:
			return nil, fmt.Errorf("binding %q is not supported by the python runner", b.Name)
		}
	}
	if ds == nil {
		return nil, fmt.Errorf("namespace has no %q binding", DatasetVar)
	}
	return ds, nil
}

func writeCSV(path string, f *dataset.Frame) error {
	fh, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	w := csv.NewWriter(fh)
	if err := w.Write(f.Columns()); err != nil {
		fh.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	if err := w.WriteAll(f.Records()); err != nil {
		fh.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	return fh.Close()
}

func tableFrame(name string, cols []string, rows [][]any) (*dataset.Frame, error) {
	out := make([]dataset.Column, len(cols))
	for i, c := range cols {
		out[i] = dataset.Column{Name: c, Values: make([]any, len(rows))}
	}
	for r, row := range rows {
		if len(row) != len(cols) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", r, len(row), len(cols))
		}
		for i, v := range row {
			if n, ok := v.(json.Number); ok {
				if iv, err := n.Int64(); err == nil {
					v = iv
				} else if fv, err := n.Float64(); err == nil {
					v = fv
				} else {
					v = n.String()
				}
			}
			out[i].Values[r] = v
		}
	}
	return dataset.New(name, out)
}
