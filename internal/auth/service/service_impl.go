package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/providers/email"
	"github.com/smallbiznis/launchpad/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	sessionTTL        = 7 * 24 * time.Hour
	verificationTTL   = 24 * time.Hour
)

type Params struct {
	fx.In

	Log              *zap.Logger
	Cfg              config.Config
	Repo             domain.Repository
	SessionRepo      domain.SessionRepository
	VerificationRepo domain.VerificationRepository
	GenID            *snowflake.Node
	Clock            clock.Clock
	Email            email.Provider
	Cooldown         ratelimit.Cooldown
	Metrics          *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log              *zap.Logger
	repo             domain.Repository
	sessionRepo      domain.SessionRepository
	verificationRepo domain.VerificationRepository
	genID            *snowflake.Node
	clock            clock.Clock
	email            email.Provider
	cooldown         ratelimit.Cooldown
	metrics          *obsmetrics.Metrics
	jwt              *jwtVerifier
	baseURL          string
	resendCooldown   time.Duration
}

func New(p Params) domain.Service {
	return &Service{
		log:              p.Log.Named("auth.service"),
		repo:             p.Repo,
		sessionRepo:      p.SessionRepo,
		verificationRepo: p.VerificationRepo,
		genID:            p.GenID,
		clock:            p.Clock,
		email:            p.Email,
		cooldown:         p.Cooldown,
		metrics:          p.Metrics,
		jwt:              newJWTVerifier(p.Cfg.AuthJWTSecret),
		baseURL:          p.Cfg.AppBaseURL,
		resendCooldown:   p.Cfg.Onboarding.VerifyResendCooldown,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	addr, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	if _, err := s.repo.FindByEmail(ctx, addr); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = defaultDisplayName(addr)
	}
	now := s.clock.Now()
	user := &domain.User{
		ID:          s.genID.Generate(),
		Email:       addr,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) IssueSession(ctx context.Context, req domain.IssueSessionRequest) (*domain.IssuedSession, error) {
	userID, err := snowflake.ParseString(strings.TrimSpace(req.UserID))
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return nil, err
	}

	rawToken, err := newToken()
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	session := &domain.Session{
		ID:               s.genID.Generate(),
		UserID:           userID,
		SessionTokenHash: hashToken(rawToken),
		UserAgent:        strings.TrimSpace(req.UserAgent),
		IPAddress:        strings.TrimSpace(req.IPAddress),
		ExpiresAt:        now.Add(sessionTTL),
		CreatedAt:        now,
		LastSeenAt:       now,
	}
	if err := s.sessionRepo.CreateSession(ctx, session); err != nil {
		return nil, err
	}
	return &domain.IssuedSession{RawToken: rawToken, ExpiresAt: session.ExpiresAt}, nil
}

func (s *Service) GetSession(ctx context.Context, rawToken string) (*domain.SessionUser, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	var userID snowflake.ID
	if s.jwt != nil && looksLikeJWT(token) {
		id, err := s.jwt.subject(token)
		if err != nil {
			return nil, err
		}
		userID = id
	} else {
		session, err := s.authenticate(ctx, token)
		if err != nil {
			return nil, err
		}
		userID = session.UserID
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}
	return user.SessionUser(), nil
}

func (s *Service) authenticate(ctx context.Context, token string) (*domain.Session, error) {
	session, err := s.sessionRepo.GetSessionByTokenHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrInvalidSession
		}
		return nil, err
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if now.After(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}
	if err := s.sessionRepo.UpdateLastSeen(ctx, session.ID, now); err != nil {
		s.log.Warn("failed to touch session", zap.Error(err))
	}
	return session, nil
}

func (s *Service) GetUser(ctx context.Context, userID string) (*domain.SessionUser, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.SessionUser(), nil
}

// ResendVerification mails a fresh confirmation link, at most once per
// cooldown window per user.
func (s *Service) ResendVerification(ctx context.Context, userID string) error {
	id, err := snowflake.ParseString(strings.TrimSpace(userID))
	if err != nil {
		return domain.ErrUserNotFound
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if user.EmailConfirmedAt != nil {
		return domain.ErrEmailAlreadyConfirmed
	}

	key := "verify:" + user.ID.String()
	cooldownToken, ok, err := s.cooldown.Acquire(ctx, key, s.resendCooldown)
	if err != nil {
		s.metrics.RecordVerificationResend(ctx, "error")
		return fmt.Errorf("acquire resend cooldown: %w", err)
	}
	if !ok {
		s.metrics.RecordVerificationResend(ctx, "throttled")
		return domain.ErrResendThrottled
	}

	if err := s.sendVerification(ctx, user); err != nil {
		s.metrics.RecordVerificationResend(ctx, "error")
		// nothing was mailed, so the user may retry right away
		if releaseErr := s.cooldown.Release(ctx, key, cooldownToken); releaseErr != nil {
			s.log.Warn("release resend cooldown failed", zap.String("user_id", user.ID.String()), zap.Error(releaseErr))
		}
		return err
	}
	s.metrics.RecordVerificationResend(ctx, "sent")
	return nil
}

func (s *Service) sendVerification(ctx context.Context, user *domain.User) error {
	rawToken, err := newToken()
	if err != nil {
		return err
	}
	now := s.clock.Now()
	if err := s.verificationRepo.CreateVerification(ctx, &domain.EmailVerification{
		ID:        s.genID.Generate(),
		UserID:    user.ID,
		TokenHash: hashToken(rawToken),
		ExpiresAt: now.Add(verificationTTL),
		CreatedAt: now,
	}); err != nil {
		return err
	}

	err = s.email.SendTemplate(ctx, []string{user.Email}, email.TemplateVerifyEmail, map[string]any{
		"verify_url": s.baseURL + "/auth/verify-email/" + rawToken,
		"expires_in": verificationTTL.String(),
	})
	if err != nil {
		return fmt.Errorf("send verification email: %w", err)
	}
	return nil
}

func (s *Service) ConfirmEmail(ctx context.Context, rawToken string) (*domain.SessionUser, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidVerification
	}
	v, err := s.verificationRepo.FindVerificationByTokenHash(ctx, hashToken(token))
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	if v.ConsumedAt != nil || now.After(v.ExpiresAt) {
		return nil, domain.ErrInvalidVerification
	}
	if err := s.verificationRepo.ConfirmEmail(ctx, v.ID, v.UserID, now); err != nil {
		return nil, err
	}
	return s.GetUser(ctx, v.UserID.String())
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultDisplayName(addr string) string {
	local, _, _ := strings.Cut(addr, "@")
	if strings.TrimSpace(local) != "" {
		return local
	}
	return addr
}

func newToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
