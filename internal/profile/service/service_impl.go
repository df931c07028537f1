package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/profile/domain"
	"go.uber.org/zap"
)

type service struct {
	log      *zap.Logger
	repo     domain.Repository
	clock    clock.Clock
	validate *validator.Validate
}

func New(log *zap.Logger, repo domain.Repository, clk clock.Clock) domain.Service {
	return &service{
		log:      log.Named("profile.service"),
		repo:     repo,
		clock:    clk,
		validate: validator.New(),
	}
}

func (s *service) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// OnboardingCompleted reads the remote flag. A missing profile row means the
// user has not finished onboarding.
func (s *service) OnboardingCompleted(ctx context.Context, userID string) (bool, error) {
	profile, err := s.Get(ctx, userID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return profile.OnboardingCompleted, nil
}

func (s *service) MarkOnboardingCompleted(ctx context.Context, userID string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	return s.repo.Upsert(ctx, domain.Profile{
		UserID:                id,
		OnboardingCompleted:   true,
		OnboardingCompletedAt: &now,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, []string{"onboarding_completed", "onboarding_completed_at"})
}

func (s *service) ResetOnboarding(ctx context.Context, userID string) error {
	id, err := parseUserID(userID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	return s.repo.Upsert(ctx, domain.Profile{
		UserID:    id,
		CreatedAt: now,
		UpdatedAt: now,
	}, []string{"onboarding_completed", "onboarding_completed_at"})
}

func (s *service) Save(ctx context.Context, userID string, input domain.ProfileInput) (*domain.Profile, error) {
	id, err := parseUserID(userID)
	if err != nil {
		return nil, err
	}

	input.FullName = strings.TrimSpace(input.FullName)
	input.JobTitle = strings.TrimSpace(input.JobTitle)
	input.Phone = strings.TrimSpace(input.Phone)
	input.Timezone = strings.TrimSpace(input.Timezone)
	if err := s.validate.Struct(input); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return nil, &domain.FieldError{Field: jsonField(fieldErrs[0].Field()), Tag: fieldErrs[0].Tag()}
		}
		return nil, err
	}

	now := s.clock.Now()
	err = s.repo.Upsert(ctx, domain.Profile{
		UserID:    id,
		FullName:  input.FullName,
		JobTitle:  input.JobTitle,
		Phone:     input.Phone,
		Timezone:  input.Timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}, []string{"full_name", "job_title", "phone", "timezone"})
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

func parseUserID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidUser
	}
	return id, nil
}

func jsonField(field string) string {
	switch field {
	case "FullName":
		return "fullName"
	case "JobTitle":
		return "jobTitle"
	default:
		return strings.ToLower(field)
	}
}
