package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/invitation/domain"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/providers/email"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Cfg     config.Config
	Email   email.Provider
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type service struct {
	log      *zap.Logger
	email    email.Provider
	metrics  *obsmetrics.Metrics
	validate *validator.Validate
	baseURL  string
}

func New(p Params) domain.Service {
	return &service{
		log:      p.Log.Named("invitation.service"),
		email:    p.Email,
		metrics:  p.Metrics,
		validate: validator.New(),
		baseURL:  p.Cfg.AppBaseURL,
	}
}

func (s *service) Send(ctx context.Context, req domain.SendRequest) error {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.ToLower(strings.TrimSpace(req.Role))
	req.OrganizationName = strings.TrimSpace(req.OrganizationName)
	req.InviterName = strings.TrimSpace(req.InviterName)

	if err := s.validate.Struct(req); err != nil {
		return mapValidation(err)
	}

	err := s.email.SendTemplate(ctx, []string{req.Email}, email.TemplateInviteMember, map[string]any{
		"org_name":     req.OrganizationName,
		"role":         req.Role,
		"inviter_name": req.InviterName,
		"accept_url":   s.acceptURL(req.Email),
	})
	if err != nil {
		s.metrics.RecordInvitationDispatch(ctx, "failed")
		return fmt.Errorf("send invitation: %w", err)
	}
	s.metrics.RecordInvitationDispatch(ctx, "sent")
	return nil
}

func (s *service) acceptURL(address string) string {
	return s.baseURL + "/signup?" + url.Values{"email": {address}}.Encode()
}

func (s *service) SendAll(ctx context.Context, reqs []domain.SendRequest) domain.DispatchResult {
	result := domain.DispatchResult{Sent: []string{}, Failed: []string{}}
	for _, req := range reqs {
		if err := s.Send(ctx, req); err != nil {
			s.log.Warn("invitation dispatch failed", zap.String("role", req.Role), zap.Error(err))
			result.Failed = append(result.Failed, req.Email)
			continue
		}
		result.Sent = append(result.Sent, strings.ToLower(strings.TrimSpace(req.Email)))
	}
	return result
}

func mapValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	switch fieldErrs[0].Field() {
	case "Email":
		return domain.ErrInvalidEmail
	case "Role":
		return domain.ErrInvalidRole
	default:
		return domain.ErrInvalidOrganization
	}
}
