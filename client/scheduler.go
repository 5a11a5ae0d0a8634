package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// trafficClass decides how an outgoing request is paced. Writes are never
// paced; GETs against the authentication surface get a wider gap than plain
// reads because the backend rate-limits that surface harder.
type trafficClass int

const (
	classWrite trafficClass = iota
	classRead
	classAuth
)

func (t trafficClass) String() string {
	switch t {
	case classRead:
		return "read"
	case classAuth:
		return "auth"
	}
	return "write"
}

// scheduler spaces request dispatches per traffic class and enforces the
// global rate-limit pause window on top. Both concerns are independent: the
// pause window applies to every class uniformly.
type scheduler struct {
	read *rate.Limiter
	auth *rate.Limiter

	mu       sync.Mutex
	resumeAt time.Time

	now func() time.Time
}

func newScheduler(readGap, authGap time.Duration) *scheduler {
	return &scheduler{
		read: newGapLimiter(readGap),
		auth: newGapLimiter(authGap),
		now:  time.Now,
	}
}

// newGapLimiter builds a limiter enforcing a minimum interval between
// dispatch starts. Burst 1 means each reservation waits out the full gap
// behind the previous one.
func newGapLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

func classify(method, path, authPrefix string) trafficClass {
	if method != http.MethodGet {
		return classWrite
	}
	if strings.HasPrefix(path, authPrefix) {
		return classAuth
	}
	return classRead
}

// wait blocks until both the global pause window and the class pacing allow
// a dispatch. Returns waited=true when the pause window actually delayed
// the request.
func (s *scheduler) wait(ctx context.Context, class trafficClass) (waited bool, err error) {
	for {
		d := s.pauseRemaining()
		if d <= 0 {
			break
		}
		waited = true
		timer := time.NewTimer(d)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return waited, ctx.Err()
		}
		timer.Stop()
	}

	switch class {
	case classRead:
		err = s.read.Wait(ctx)
	case classAuth:
		err = s.auth.Wait(ctx)
	}
	return waited, err
}

func (s *scheduler) pauseRemaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeAt.Sub(s.now())
}

// pauseFor extends the global window to now+d. The window only ever grows;
// a shorter concurrent extension never shrinks an existing one.
func (s *scheduler) pauseFor(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	until := s.now().Add(d)
	if until.After(s.resumeAt) {
		s.resumeAt = until
	}
}

// clearPause resets the window. Only sign-out does this.
func (s *scheduler) clearPause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumeAt = time.Time{}
}

// parseRetryAfter interprets the Retry-After header, which carries either a
// delay in seconds or an HTTP-date. Absent or unparseable values fall back
// to def.
func parseRetryAfter(h http.Header, def time.Duration, now func() time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return def
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return def
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now()); d > 0 {
			return d
		}
		return 0
	}
	return def
}
