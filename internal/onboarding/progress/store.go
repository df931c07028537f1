package progress

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/smallbiznis/launchpad/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"go.uber.org/zap"
)

const (
	suffixStatus = "status"
	suffixStep   = "step"
	suffixData   = "data"
)

// Store implements domain.ProgressStore over a KV. Backend failures and
// malformed values are logged and counted, never returned.
type Store struct {
	kv      KV
	prefix  string
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

var _ domain.ProgressStore = (*Store)(nil)

func NewStore(kv KV, prefix string, log *zap.Logger, metrics *obsmetrics.Metrics) *Store {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "onboarding"
	}
	return &Store{kv: kv, prefix: prefix, log: log.Named("onboarding.progress"), metrics: metrics}
}

// Key returns the backend key for one field of a user's progress.
func (s *Store) Key(userID, field string) string {
	return s.prefix + ":" + userID + ":" + field
}

func (s *Store) Load(ctx context.Context, userID string) domain.Snapshot {
	snap := domain.DefaultSnapshot()
	log := logger.WithContext(ctx, s.log)

	if raw, ok := s.get(ctx, userID, suffixStatus); ok {
		if status, valid := domain.ParseStatus(raw); valid {
			snap.Status = status
		} else {
			log.Warn("ignoring unknown onboarding status", zap.String("value", raw))
		}
	}

	if raw, ok := s.get(ctx, userID, suffixStep); ok {
		index, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			log.Warn("ignoring malformed onboarding step", zap.String("value", raw))
		} else {
			snap.Index = domain.ClampIndex(index, len(domain.Steps))
		}
	}

	if raw, ok := s.get(ctx, userID, suffixData); ok {
		var data domain.Data
		if err := json.Unmarshal([]byte(raw), &data); err != nil || data == nil {
			log.Warn("ignoring malformed onboarding data", zap.Int("bytes", len(raw)))
		} else {
			snap.Data = data
		}
	}

	return snap
}

// Save writes data, then index, then status, so a torn write resumes at
// the start of the current step with its data already merged.
func (s *Store) Save(ctx context.Context, userID string, patch domain.Patch) {
	if patch.Data != nil {
		encoded, err := json.Marshal(patch.Data)
		if err != nil {
			s.fail(ctx, "encode", err)
		} else {
			s.set(ctx, userID, suffixData, string(encoded))
		}
	}
	if patch.Index != nil {
		s.set(ctx, userID, suffixStep, strconv.Itoa(domain.ClampIndex(*patch.Index, len(domain.Steps))))
	}
	if patch.Status != nil {
		s.set(ctx, userID, suffixStatus, string(*patch.Status))
	}
}

func (s *Store) Clear(ctx context.Context, userID string) {
	for _, field := range []string{suffixStatus, suffixStep, suffixData} {
		s.delete(ctx, userID, field)
	}
}

func (s *Store) ClearProgress(ctx context.Context, userID string) {
	s.delete(ctx, userID, suffixStep)
	s.delete(ctx, userID, suffixData)
}

func (s *Store) get(ctx context.Context, userID, field string) (string, bool) {
	value, ok, err := s.kv.Get(ctx, s.Key(userID, field))
	if err != nil {
		s.fail(ctx, "get", err)
		return "", false
	}
	return value, ok
}

func (s *Store) set(ctx context.Context, userID, field, value string) {
	if err := s.kv.Set(ctx, s.Key(userID, field), value); err != nil {
		s.fail(ctx, "set", err)
	}
}

func (s *Store) delete(ctx context.Context, userID, field string) {
	if err := s.kv.Delete(ctx, s.Key(userID, field)); err != nil {
		s.fail(ctx, "delete", err)
	}
}

func (s *Store) fail(ctx context.Context, op string, err error) {
	logger.WithContext(ctx, s.log).Warn("onboarding progress store failed", zap.String("op", op), zap.Error(err))
	s.metrics.RecordStoreError(ctx, op)
}
