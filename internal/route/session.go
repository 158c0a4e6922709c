package route

import (
	"context"
	"sync"
)

// Session serialises the analyses of one edited route. Starting a new
// analysis cancels the one in flight, and only the latest call may return a
// report: earlier calls get ErrSuperseded.
type Session struct {
	analyzer *Analyzer

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewSession creates a session bound to the analyzer.
func (a *Analyzer) NewSession() *Session {
	return &Session{analyzer: a}
}

// Analyze runs req, superseding any analysis still running in this session.
func (s *Session) Analyze(ctx context.Context, req Request) (*Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.gen++
	gen := s.gen
	s.cancel = cancel
	s.mu.Unlock()

	r, err := s.analyzer.Analyze(ctx, req)

	s.mu.Lock()
	latest := s.gen == gen
	if latest {
		s.cancel = nil
	}
	s.mu.Unlock()

	if !latest {
		return nil, ErrSuperseded
	}
	return r, err
}
