package eloverblik

import (
	"context"
	"sync"
	"time"
)

// AccessTokenValidity is how long an access token is reused before a new
// one is exchanged. The API issues tokens valid for an hour.
const AccessTokenValidity = 59 * time.Minute

// tokenSource caches the short-lived access token obtained by exchanging
// the refresh token. The zero token means no token has been obtained yet.
//
// mu is held across the exchange call so concurrent callers wait for the
// refresh in flight instead of starting their own.
type tokenSource struct {
	mu       sync.Mutex
	token    string
	acquired time.Time

	validity time.Duration
	now      func() time.Time
	exchange func(ctx context.Context) (string, error)
}

func newTokenSource(exchange func(ctx context.Context) (string, error)) *tokenSource {
	return &tokenSource{
		validity: AccessTokenValidity,
		now:      time.Now,
		exchange: exchange,
	}
}

// Token returns a valid access token, exchanging the refresh token first
// when none is cached or the cached one is stale. A failed exchange leaves
// the cache untouched.
func (s *tokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.valid() {
		return s.token, nil
	}

	token, err := s.exchange(ctx)
	if err != nil {
		return "", err
	}

	s.token = token
	s.acquired = s.now()
	return s.token, nil
}

func (s *tokenSource) valid() bool {
	return s.token != "" && s.now().Sub(s.acquired) < s.validity
}
