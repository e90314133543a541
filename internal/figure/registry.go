package figure

import "sync"

// Renderer is anything the registry can turn into a PNG.
type Renderer interface {
	Label() string
	PNG() ([]byte, error)
}

// Image is an already-encoded PNG, used by runners that render out of
// process.
type Image struct {
	Title string
	Data  []byte
}

func (i Image) Label() string {
	if i.Title != "" {
		return i.Title
	}
	return "figure"
}

func (i Image) PNG() ([]byte, error) { return i.Data, nil }

// Registry tracks open figures in creation order. It is shared between a
// script run and the renderer, which drains it afterwards.
type Registry struct {
	mu      sync.Mutex
	open    []Renderer
	current *Figure
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry { return &Registry{} }

// New opens a figure and makes it current.
func (r *Registry) New() *Figure {
	f := &Figure{}
	r.mu.Lock()
	r.open = append(r.open, f)
	r.current = f
	r.mu.Unlock()
	return f
}

// Current returns the current figure, opening one if none is open.
func (r *Registry) Current() *Figure {
	r.mu.Lock()
	f := r.current
	r.mu.Unlock()
	if f != nil {
		return f
	}
	return r.New()
}

// Activate makes f current if it is still open.
func (r *Registry) Activate(f *Figure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, o := range r.open {
		if o == f {
			r.current = f
			return
		}
	}
}

// Close discards the current figure.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	r.remove(r.current)
}

// CloseFigure discards f.
func (r *Registry) CloseFigure(f *Figure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(f)
}

func (r *Registry) remove(f *Figure) {
	for i, o := range r.open {
		if o == f {
			r.open = append(r.open[:i:i], r.open[i+1:]...)
			break
		}
	}
	if r.current == f {
		r.current = nil
		for i := len(r.open) - 1; i >= 0; i-- {
			if fig, ok := r.open[i].(*Figure); ok {
				r.current = fig
				break
			}
		}
	}
}

// CloseAll discards every open figure.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.open = nil
	r.current = nil
	r.mu.Unlock()
}

// Add registers a pre-rendered figure.
func (r *Registry) Add(x Renderer) {
	r.mu.Lock()
	r.open = append(r.open, x)
	r.mu.Unlock()
}

// Len reports how many figures are open.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

// Drain returns all open figures in creation order and empties the registry.
func (r *Registry) Drain() []Renderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.open
	r.open = nil
	r.current = nil
	return out
}
