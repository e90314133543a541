package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/vizloom-cli/internal/dataset"
	"github.com/KaramelBytes/vizloom-cli/internal/pipeline"
)

const (
	cookieName = "vizloom"
	sessionKey = "sid"
)

// sessionState is everything one browser session owns. mu also serializes
// analyze calls within the session.
type sessionState struct {
	mu          sync.Mutex
	credential  string
	dataset     *dataset.Frame
	fullPreview bool
	query       string
	result      *pipeline.Result
	flash       string
	err         string
}

// session returns a pipeline view of the state. Callers hold mu.
func (st *sessionState) session() pipeline.Session {
	return pipeline.Session{Credential: st.credential, Dataset: st.dataset}
}

// takeMessages returns and clears the one-shot flash and error.
func (st *sessionState) takeMessages() (flash, errMsg string) {
	flash, errMsg = st.flash, st.err
	st.flash, st.err = "", ""
	return flash, errMsg
}

const (
	// sessionTTL matches the cookie MaxAge.
	sessionTTL    = 24 * time.Hour
	maxSessions   = 512
	sweepInterval = time.Minute
)

type stateEntry struct {
	st   *sessionState
	seen time.Time
}

// stateStore keeps session state in memory. Entries idle longer than ttl
// are swept, and the least recently seen entry is dropped when limit is
// reached.
type stateStore struct {
	mu        sync.Mutex
	m         map[string]*stateEntry
	ttl       time.Duration
	limit     int
	now       func() time.Time
	lastSweep time.Time
}

func newStateStore(ttl time.Duration, limit int) *stateStore {
	return &stateStore{m: map[string]*stateEntry{}, ttl: ttl, limit: limit, now: time.Now}
}

func (s *stateStore) get(id string, seed func() *sessionState) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if now.Sub(s.lastSweep) >= sweepInterval {
		s.sweep(now)
	}
	e, ok := s.m[id]
	if !ok {
		if s.limit > 0 && len(s.m) >= s.limit {
			s.evictOldest()
		}
		e = &stateEntry{st: seed()}
		s.m[id] = e
	}
	e.seen = now
	return e.st
}

func (s *stateStore) sweep(now time.Time) {
	s.lastSweep = now
	if s.ttl <= 0 {
		return
	}
	for id, e := range s.m {
		if now.Sub(e.seen) > s.ttl {
			delete(s.m, id)
		}
	}
}

func (s *stateStore) evictOldest() {
	var oldest string
	var seen time.Time
	for id, e := range s.m {
		if oldest == "" || e.seen.Before(seen) {
			oldest, seen = id, e.seen
		}
	}
	delete(s.m, oldest)
}

func (s *stateStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// state resolves the cookie session to its in-memory state, issuing a new
// session id when the cookie is missing or invalid.
func (s *Server) state(w http.ResponseWriter, r *http.Request) *sessionState {
	sess, err := s.sessionStore.Get(r, cookieName)
	if err != nil {
		s.log.Debug("discarding invalid session cookie")
	}
	id, _ := sess.Values[sessionKey].(string)
	if id == "" {
		id = uuid.NewString()
		sess.Values[sessionKey] = id
		if err := sess.Save(r, w); err != nil {
			s.log.Warn("save session cookie failed")
		}
	}
	return s.states.get(id, func() *sessionState {
		return &sessionState{credential: s.cfg.Credential}
	})
}
