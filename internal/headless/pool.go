package headless

import (
	"sync"

	"github.com/roach88/projector/internal/session"
)

// Pool hands out renderers sharing one library and remembers each one, so
// callers can check how many are alive at once.
type Pool struct {
	lib Library

	mu        sync.Mutex
	renderers []*Renderer
}

// NewPool returns a pool over lib.
func NewPool(lib Library) *Pool {
	return &Pool{lib: lib}
}

// Factory returns a session.Factory that records every renderer it makes.
func (p *Pool) Factory() session.Factory {
	return func() session.Renderer {
		r := New(p.lib)
		p.mu.Lock()
		p.renderers = append(p.renderers, r)
		p.mu.Unlock()
		return r
	}
}

// Created returns how many renderers the pool has made.
func (p *Pool) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.renderers)
}

// Live returns the renderers not yet destroyed.
func (p *Pool) Live() []*Renderer {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Renderer
	for _, r := range p.renderers {
		if !r.Destroyed() {
			out = append(out, r)
		}
	}
	return out
}

// Current returns the most recently created live renderer, or nil.
func (p *Pool) Current() *Renderer {
	live := p.Live()
	if len(live) == 0 {
		return nil
	}
	return live[len(live)-1]
}
