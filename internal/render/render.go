// Package render turns the state left by a script run into displayable
// artifacts: static figures, interactive charts and tables.
package render

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/figure"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

// Kind is the artifact type.
type Kind string

const (
	KindFigure Kind = "figure"
	KindChart  Kind = "chart"
	KindTable  Kind = "table"
)

// Artifact is one rendered output. Exactly one of PNG, HTML or Table is
// set, matching Kind.
type Artifact struct {
	Kind  Kind
	Label string
	PNG   []byte
	HTML  string
	Table *dataset.Frame
}

// Charter is a value that renders itself as an HTML document.
type Charter interface {
	ToHTML() (string, error)
}

// Tabler is a value that converts to a table.
type Tabler interface {
	Table() (*dataset.Frame, error)
}

// Options tune Collect.
type Options struct {
	// Reserved names are never rendered as tables. Defaults to df.
	Reserved []string
	Logger   *zap.Logger
}

// Report holds artifacts grouped by pass.
type Report struct {
	Figures  []Artifact
	Charts   []Artifact
	Tables   []Artifact
	Warnings []string
}

// Artifacts returns figures, charts and tables in display order.
func (r Report) Artifacts() []Artifact {
	out := make([]Artifact, 0, len(r.Figures)+len(r.Charts)+len(r.Tables))
	out = append(out, r.Figures...)
	out = append(out, r.Charts...)
	return append(out, r.Tables...)
}

// Len counts all artifacts.
func (r Report) Len() int { return len(r.Figures) + len(r.Charts) + len(r.Tables) }

// Collect drains the figure registry, then walks bindings for charts and
// then for tables. A failing value is skipped with a warning.
func Collect(reg *figure.Registry, bindings []sandbox.Binding, opt Options) Report {
	log := opt.Logger
	if log == nil {
		log = zap.NewNop()
	}
	reserved := opt.Reserved
	if reserved == nil {
		reserved = []string{sandbox.DatasetVar}
	}
	var rep Report
	warn := func(label string, err error) {
		log.Warn("render failed", zap.String("label", label), zap.Error(err))
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("could not render %s: %v", label, err))
	}

	if reg != nil {
		for i, f := range reg.Drain() {
			label := fmt.Sprintf("Figure %d", i+1)
			var png []byte
			err := probe(func() error {
				if l := f.Label(); l != "" {
					label = l
				}
				var err error
				png, err = f.PNG()
				return err
			})
			if err != nil {
				warn(label, err)
				continue
			}
			rep.Figures = append(rep.Figures, Artifact{Kind: KindFigure, Label: label, PNG: png})
		}
	}

	for _, b := range bindings {
		c, ok := b.Value.(Charter)
		if !ok {
			continue
		}
		var html string
		err := probe(func() error {
			var err error
			html, err = c.ToHTML()
			return err
		})
		if err != nil {
			warn(b.Name, err)
			continue
		}
		rep.Charts = append(rep.Charts, Artifact{Kind: KindChart, Label: b.Name, HTML: html})
	}

	for _, b := range bindings {
		if isReserved(reserved, b.Name) {
			continue
		}
		t, ok := b.Value.(Tabler)
		if !ok {
			continue
		}
		var tbl *dataset.Frame
		err := probe(func() error {
			var err error
			tbl, err = t.Table()
			return err
		})
		if err != nil {
			warn(b.Name, err)
			continue
		}
		if tbl == nil {
			continue
		}
		rep.Tables = append(rep.Tables, Artifact{Kind: KindTable, Label: b.Name, Table: tbl})
	}
	log.Debug("collected artifacts",
		zap.Int("figures", len(rep.Figures)),
		zap.Int("charts", len(rep.Charts)),
		zap.Int("tables", len(rep.Tables)))
	return rep
}

func probe(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn()
}

func isReserved(names []string, n string) bool {
	for _, x := range names {
		if x == n {
			return true
		}
	}
	return false
}
