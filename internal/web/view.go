package web

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/config"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/prompt"
	"github.com/KaramelBytes/vizloom-cli/internal/render"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// maxPreviewRows caps the "full" preview table.
const maxPreviewRows = 10000

type pageView struct {
	Warning      string
	Provider     string
	Model        string
	HasKey       bool
	MaskedKey    string
	Flash        string
	Error        string
	Dataset      *tableView
	Schema       string
	FullPreview  bool
	Query        string
	DefaultQuery string
	Result       *resultView
}

type tableView struct {
	Label     string
	Columns   []string
	Rows      [][]string
	Total     int
	Truncated bool
}

type figureView struct {
	Label string
	Src   template.URL
}

type chartView struct {
	Label  string
	SrcDoc string
}

type resultView struct {
	State    string
	Response template.HTML
	Code     string
	Output   string
	Error    string
	Warnings []string
	Figures  []figureView
	Charts   []chartView
	Tables   []tableView
	Model    string
	Usage    string
	Elapsed  string
}

// page builds the view for st. Callers hold st.mu.
func (s *Server) page(st *sessionState) pageView {
	v := pageView{
		Warning:      sandbox.Warning,
		Provider:     s.cfg.Provider,
		HasKey:       st.credential != "",
		MaskedKey:    config.Masked(st.credential),
		FullPreview:  st.fullPreview,
		Query:        st.query,
		DefaultQuery: prompt.DefaultQuery,
	}
	if s.cfg.Analyzer != nil {
		v.Model = s.cfg.Analyzer.Model
	}
	v.Flash, v.Error = st.takeMessages()
	if st.dataset != nil {
		n := s.cfg.PreviewRows
		if st.fullPreview {
			n = maxPreviewRows
		}
		t := frameTable(st.dataset.Name(), st.dataset, n)
		v.Dataset = &t
		v.Schema = st.dataset.SchemaLine()
	}
	if st.result != nil {
		v.Result = resultFor(st.result)
	}
	return v
}

func frameTable(label string, f *dataset.Frame, limit int) tableView {
	t := tableView{Label: label, Columns: f.Columns(), Total: f.Len()}
	shown := f
	if limit > 0 && f.Len() > limit {
		shown = f.Head(limit)
		t.Truncated = true
	}
	t.Rows = shown.Records()
	return t
}

func resultFor(res *pipeline.Result) *resultView {
	rv := &resultView{
		State:    string(res.State),
		Response: markdown(res.Response),
		Code:     res.Code,
		Output:   res.Output,
		Error:    res.Error,
		Warnings: res.Warnings,
		Model:    res.Model,
		Elapsed:  res.Elapsed.Round(time.Millisecond).String(),
	}
	if u := res.Usage; u.TotalTokens > 0 {
		rv.Usage = fmt.Sprintf("%d prompt + %d completion tokens", u.PromptTokens, u.CompletionTokens)
		if cost, ok := ai.EstimateCostUSD(res.Model, u.PromptTokens, u.CompletionTokens); ok && cost > 0 {
			rv.Usage += fmt.Sprintf(" (~$%.4f)", cost)
		}
	}
	for _, a := range res.Artifacts {
		switch a.Kind {
		case render.KindFigure:
			rv.Figures = append(rv.Figures, figureView{
				Label: a.Label,
				Src:   template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(a.PNG)),
			})
		case render.KindChart:
			rv.Charts = append(rv.Charts, chartView{Label: a.Label, SrcDoc: a.HTML})
		case render.KindTable:
			rv.Tables = append(rv.Tables, frameTable(a.Label, a.Table, 500))
		}
	}
	return rv
}

// markdown renders model output. Raw HTML in the input is not passed
// through.
func markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}
