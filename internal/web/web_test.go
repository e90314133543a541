package web

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
	"github.com/KaramelBytes/vizloom-cli/internal/sandbox"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubRuntime struct {
	reply string
	calls atomic.Int32
}

func (s *stubRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.calls.Add(1)
	return &ai.GenerateResponse{
		Model:   "stub",
		Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.reply}}},
	}, nil
}

func newServer(rt ai.Runtime, credential string) *Server {
	return NewServer(Config{
		Analyzer: &pipeline.Analyzer{
			Runtimes: func(string) (ai.Runtime, error) { return rt, nil },
			Runner:   sandbox.NewStarlarkRunner(nil),
			Model:    "gemini-2.0-flash",
		},
		SessionSecret: "test-secret-key-32-bytes-long!!",
		Credential:    credential,
		Provider:      "gemini",
		LoadOptions:   dataset.DefaultOptions(),
	})
}

// browser replays cookies across handler calls.
type browser struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, s *Server) *browser {
	return &browser{t: t, h: s.Handler(), cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	b.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) page() string {
	b.t.Helper()
	rec := b.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(b.t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func (b *browser) post(path string, form url.Values) {
	b.t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := b.do(req)
	require.Equal(b.t, http.StatusSeeOther, rec.Code)
}

func (b *browser) upload(name, content string) {
	b.t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(b.t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(b.t, err)
	require.NoError(b.t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := b.do(req)
	require.Equal(b.t, http.StatusSeeOther, rec.Code)
}

const scoresCSV = "class,score\nA,80\nB,70\nA,90\nC,60\nB,75\nA,85\nC,65\n"

func TestHealthz(t *testing.T) {
	rec := newBrowser(t, newServer(&stubRuntime{}, "")).do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestIndexShowsWarnings(t *testing.T) {
	body := newBrowser(t, newServer(&stubRuntime{}, "")).page()
	assert.Contains(t, body, "This app executes model-generated code locally.")
	assert.Contains(t, body, `id="missing-key"`)
	assert.Contains(t, body, "Upload a CSV file to get started.")
}

func TestAnalyzeWithoutKeyNeverCallsModel(t *testing.T) {
	rt := &stubRuntime{reply: "```python\nx = 1\n```"}
	b := newBrowser(t, newServer(rt, ""))
	b.post("/analyze", url.Values{"query": {"anything"}})
	body := b.page()
	assert.Contains(t, body, msgNoCredential)
	assert.Zero(t, rt.calls.Load())
	assert.NotContains(t, body, `id="result"`)
}

func TestUploadWithoutKeyIsRejected(t *testing.T) {
	s := newServer(&stubRuntime{}, "")
	b := newBrowser(t, s)
	assert.Contains(t, b.page(), `disabled>Upload</button>`)

	b.upload("scores.csv", scoresCSV)
	body := b.page()
	assert.Contains(t, body, `id="error">`+msgNoCredential)
	assert.NotContains(t, body, "Dataset: scores.csv")

	b.post("/credential", url.Values{"api_key": {"k"}})
	b.upload("scores.csv", scoresCSV)
	assert.Contains(t, b.page(), "Dataset: scores.csv")
}

func TestBadUploadKeepsDataset(t *testing.T) {
	b := newBrowser(t, newServer(&stubRuntime{}, "k"))
	b.upload("scores.csv", scoresCSV)
	assert.Contains(t, b.page(), "Loaded scores.csv: 7 rows, 2 columns.")

	b.upload("broken.csv", "\x00\x01\x02binary")
	body := b.page()
	assert.Contains(t, body, "Could not read the uploaded file")
	assert.Contains(t, body, "Dataset: scores.csv")
}

func TestPreviewToggle(t *testing.T) {
	b := newBrowser(t, newServer(&stubRuntime{}, "k"))
	b.upload("scores.csv", scoresCSV)
	body := b.page()
	assert.Contains(t, body, "5 of 7 rows shown")

	b.post("/preview", url.Values{"full": {"on"}})
	body = b.page()
	assert.Contains(t, body, "7 of 7 rows")
	assert.Contains(t, body, "checked")

	b.post("/preview", url.Values{})
	assert.Contains(t, b.page(), "5 of 7 rows shown")
}

func TestAnalyzeHappyPath(t *testing.T) {
	rt := &stubRuntime{reply: "Sure.\n```python\nmeans = df.groupby(\"class\")[\"score\"].mean()\nprint(\"classes\", len(means))\n```\n"}
	b := newBrowser(t, newServer(rt, ""))
	b.post("/credential", url.Values{"api_key": {"secret-key-1234"}})
	b.upload("scores.csv", scoresCSV)
	b.post("/analyze", url.Values{"query": {"compare classes"}})

	body := b.page()
	assert.Equal(t, int32(1), rt.calls.Load())
	assert.Contains(t, body, msgComplete)
	assert.Contains(t, body, `id="code"`)
	assert.Contains(t, body, "groupby")
	assert.Contains(t, body, "classes 3")
	assert.Contains(t, body, "<h3>means</h3>")
	assert.NotContains(t, body, "<h3>df</h3>")
	assert.NotContains(t, body, `id="missing-key"`)
	assert.Contains(t, body, "compare classes")

	// Flash messages are shown once.
	assert.NotContains(t, b.page(), msgComplete)
}

func TestSessionsAreSeparate(t *testing.T) {
	s := newServer(&stubRuntime{}, "k")
	alice := newBrowser(t, s)
	bob := newBrowser(t, s)
	alice.upload("scores.csv", scoresCSV)
	assert.Contains(t, alice.page(), "Dataset: scores.csv")
	assert.NotContains(t, bob.page(), "Dataset: scores.csv")
	assert.Equal(t, 2, s.states.len())
}

func TestStateStoreEvictsIdleSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newStateStore(time.Hour, 3)
	store.now = func() time.Time { return now }
	seed := func() *sessionState { return &sessionState{} }

	a := store.get("a", seed)
	store.get("b", seed)
	assert.Same(t, a, store.get("a", seed))
	assert.Equal(t, 2, store.len())

	// Past the TTL the next access sweeps both idle entries.
	now = now.Add(2 * time.Hour)
	store.get("c", seed)
	assert.Equal(t, 1, store.len())
	assert.NotSame(t, a, store.get("a", seed))

	// At the limit the least recently seen entry goes first.
	now = now.Add(time.Second)
	store.get("d", seed)
	now = now.Add(time.Second)
	store.get("a", seed)
	store.get("e", seed)
	assert.Equal(t, 3, store.len())
	store.get("c", seed)
	assert.Equal(t, 3, store.len())
	_, kept := store.m["a"]
	_, dropped := store.m["d"]
	assert.True(t, kept)
	assert.False(t, dropped)
}

func TestCookielessRequestsAreBounded(t *testing.T) {
	s := newServer(&stubRuntime{}, "")
	now := time.Now()
	s.states.now = func() time.Time { return now }
	h := s.Handler()
	for i := 0; i < maxSessions+50; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, maxSessions, s.states.len())

	now = now.Add(sessionTTL + sweepInterval)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, 1, s.states.len())
}

func TestServeListenerShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot open local listener: %v", err)
	}
	s := newServer(&stubRuntime{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{}}
	defer client.CloseIdleConnections()
	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 20*time.Millisecond)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
