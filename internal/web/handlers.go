package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
)

const (
	msgNoCredential = "Please enter your API key to run an analysis."
	msgNoDataset    = "Upload a CSV file to get started."
	msgComplete     = "✅ Analysis complete"
)

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	st := s.state(w, r)
	st.mu.Lock()
	view := s.page(st)
	st.mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, view); err != nil {
		s.log.Error("render page", zap.Error(err))
	}
}

func (s *Server) back(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// credential stores the API key. An empty key clears it.
func (s *Server) credential(w http.ResponseWriter, r *http.Request) {
	st := s.state(w, r)
	key := strings.TrimSpace(r.FormValue("api_key"))
	st.mu.Lock()
	st.credential = key
	if key == "" {
		st.flash = "API key cleared."
	} else {
		st.flash = "API key saved for this session."
	}
	st.mu.Unlock()
	s.back(w, r)
}

// upload replaces the session dataset. A file that fails to parse leaves
// the previous dataset in place. Uploads need an API key.
func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	st := s.state(w, r)
	st.mu.Lock()
	hasKey := st.credential != ""
	if !hasKey {
		st.err = msgNoCredential
	}
	st.mu.Unlock()
	if !hasKey {
		s.back(w, r)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	ds, err := s.readUpload(r)

	st.mu.Lock()
	defer st.mu.Unlock()
	if err != nil {
		s.log.Info("upload rejected", zap.Error(err))
		st.err = "Could not read the uploaded file: " + err.Error()
		s.back(w, r)
		return
	}
	st.dataset = ds
	st.fullPreview = false
	st.result = nil
	st.flash = fmt.Sprintf("Loaded %s: %d rows, %d columns.", ds.Name(), ds.Len(), ds.Width())
	s.log.Info("dataset loaded", zap.String("name", ds.Name()), zap.Int("rows", ds.Len()), zap.Int("cols", ds.Width()))
	s.back(w, r)
}

func (s *Server) readUpload(r *http.Request) (*dataset.Frame, error) {
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("file exceeds the %d MB limit", s.cfg.MaxUploadBytes>>20)
		}
		return nil, fmt.Errorf("read form: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("no file selected")
	}
	defer file.Close()
	opt := s.cfg.LoadOptions
	opt.MaxBytes = s.cfg.MaxUploadBytes
	switch r.FormValue("delimiter") {
	case ",":
		opt.Delimiter = ','
	case ";":
		opt.Delimiter = ';'
	case "tab":
		opt.Delimiter = '\t'
	}
	return dataset.Load(header.Filename, file, opt)
}

// preview toggles between the head and the full dataset.
func (s *Server) preview(w http.ResponseWriter, r *http.Request) {
	st := s.state(w, r)
	st.mu.Lock()
	st.fullPreview = r.FormValue("full") == "on" || r.FormValue("full") == "true"
	st.mu.Unlock()
	s.back(w, r)
}

// analyze runs the pipeline for the session. The session lock is held for
// the whole request.
func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	st := s.state(w, r)
	query := strings.TrimSpace(r.FormValue("query"))

	st.mu.Lock()
	defer st.mu.Unlock()
	st.query = query
	if s.cfg.Analyzer == nil {
		st.err = "analysis is not configured"
		s.back(w, r)
		return
	}
	res, err := s.cfg.Analyzer.Analyze(r.Context(), st.session(), query)
	switch {
	case errors.Is(err, pipeline.ErrMissingCredential):
		st.err = msgNoCredential
	case errors.Is(err, pipeline.ErrNoDataset):
		st.err = msgNoDataset
	case err != nil:
		msg := "Model request failed: " + err.Error()
		if hint := ai.Hint(err); hint != "" {
			msg += " (" + hint + ")"
		}
		st.err = msg
		st.result = nil
	default:
		st.result = res
		if res.State == pipeline.StateSucceeded {
			st.flash = msgComplete
		}
	}
	s.back(w, r)
}
