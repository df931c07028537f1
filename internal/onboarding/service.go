// Package onboarding keeps one completion gate per signed-in user and wires
// the progress store and step registry behind it.
package onboarding

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/gate"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      config.Config
	Store    domain.ProgressStore
	Steps    *steps.Registry
	Auth     authdomain.Service
	Profiles profiledomain.Service
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Service hands out the gate of a user. Idle gates expire and are rebuilt
// from the progress store on the next request. A gate dropped by the cache
// while it is submitting is held aside and handed out again until it
// settles, so a user never has two live gates.
type Service struct {
	log   *zap.Logger
	deps  gate.Deps
	mu    sync.Mutex
	flows *expirable.LRU[string, *gate.Gate]

	heldMu sync.Mutex
	held   map[string]*gate.Gate
}

func NewService(p Params) *Service {
	size := p.Cfg.Onboarding.FlowCacheSize
	if size <= 0 {
		size = 10_000
	}
	ttl := p.Cfg.Onboarding.FlowTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Service{
		log: p.Log.Named("onboarding.service"),
		deps: gate.Deps{
			Store:    p.Store,
			Steps:    p.Steps,
			Auth:     p.Auth,
			Profiles: p.Profiles,
			Clock:    p.Clock,
			Log:      p.Log,
			Metrics:  p.Metrics,
			InFlight: gate.NewInFlight(),
		},
		held: make(map[string]*gate.Gate),
	}
	s.flows = expirable.NewLRU[string, *gate.Gate](size, s.onEvicted, ttl)
	return s
}

// onEvicted runs under the cache lock; it must not call back into flows.
func (s *Service) onEvicted(userID string, g *gate.Gate) {
	if !g.Busy() {
		return
	}
	s.heldMu.Lock()
	s.held[userID] = g
	s.heldMu.Unlock()
}

// reclaim returns a held gate for userID and drops held gates that have
// settled since they were evicted.
func (s *Service) reclaim(userID string) (*gate.Gate, bool) {
	s.heldMu.Lock()
	defer s.heldMu.Unlock()
	g, ok := s.held[userID]
	delete(s.held, userID)
	for id, other := range s.held {
		if !other.Busy() {
			delete(s.held, id)
		}
	}
	return g, ok
}

// Flow returns the user's checked gate, creating it on first use.
func (s *Service) Flow(ctx context.Context, user authdomain.SessionUser) (*gate.Gate, error) {
	if user.ID == "" {
		return nil, domain.ErrInvalidUser
	}

	s.mu.Lock()
	g, ok := s.flows.Get(user.ID)
	if !ok {
		g, ok = s.reclaim(user.ID)
	}
	if !ok {
		g = gate.New(s.deps, user)
	}
	// re-adding restarts the expiry so an active flow is not dropped mid-use
	s.flows.Add(user.ID, g)
	s.mu.Unlock()

	g.Check(ctx)
	return g, nil
}

// Invalidate makes the user's gate re-read the session, stored progress and
// remote flag on its next request. The gate itself is kept.
func (s *Service) Invalidate(userID string) {
	s.mu.Lock()
	g, ok := s.flows.Peek(userID)
	s.mu.Unlock()
	if !ok {
		g, ok = s.reclaim(userID)
		if ok {
			s.mu.Lock()
			s.flows.Add(userID, g)
			s.mu.Unlock()
		}
	}
	if ok {
		g.Invalidate()
	}
}

// Progress reads the stored snapshot without building a gate.
func (s *Service) Progress(ctx context.Context, userID string) domain.Snapshot {
	return s.deps.Store.Load(ctx, userID)
}

// ResetProgress clears stored progress and reloads the cached gate. It is
// refused while the user has a submission running.
func (s *Service) ResetProgress(ctx context.Context, userID string) error {
	if g, ok := s.flows.Peek(userID); ok && g.Busy() {
		return domain.ErrSubmissionInFlight
	}
	s.deps.Store.Clear(ctx, userID)
	s.Invalidate(userID)
	s.log.Info("onboarding progress reset", zap.String("user_id", userID))
	return nil
}
