package extract

import (
	"context"
	"net/http"
	"time"
)

// SessionPool hands out HTTP sessions to concurrent extractions.
// Sessions are mutually exclusive per use: a checkout must be
// released on every exit path, including failures.
type SessionPool struct {
	sessions chan *http.Client
}

// NewSessionPool pre-creates size sessions with the given per-request
// timeout.
func NewSessionPool(size int, timeout time.Duration) *SessionPool {
	if size < 1 {
		size = 1
	}
	pool := &SessionPool{sessions: make(chan *http.Client, size)}
	for i := 0; i < size; i++ {
		pool.sessions <- &http.Client{Timeout: timeout}
	}
	return pool
}

// Acquire checks out a session, blocking until one is free or the
// context is cancelled.
func (p *SessionPool) Acquire(ctx context.Context) (*http.Client, error) {
	select {
	case client := <-p.sessions:
		return client, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns a session to the pool.
func (p *SessionPool) Release(client *http.Client) {
	if client == nil {
		return
	}
	p.sessions <- client
}
