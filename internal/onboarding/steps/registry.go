package steps

import (
	"time"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	"github.com/smallbiznis/launchpad/internal/config"
	invdomain "github.com/smallbiznis/launchpad/internal/invitation/domain"
	orgdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Cfg           config.Config
	Auth          authdomain.Service
	Plans         *config.PlanCatalogHolder
	Organizations orgdomain.Service
	Authorization authorization.Service
	Invitations   invdomain.Service
	Profiles      profiledomain.Service
}

// NewDefaultRegistry wires the six production steps.
func NewDefaultRegistry(p Params) *Registry {
	log := p.Log.Named("onboarding.steps")
	autoAdvance := p.Cfg.Onboarding.VerifyAutoAdvance
	if autoAdvance <= 0 {
		autoAdvance = 2 * time.Second
	}
	return NewRegistry(
		NewVerifyEmail(p.Auth, autoAdvance, log),
		NewPlanSelection(p.Plans),
		NewOrganizationSetup(p.Organizations, log),
		NewTeamInvitation(p.Organizations, p.Authorization, p.Invitations, log),
		NewProfileCompletion(p.Profiles),
		NewFinalConfirmation(p.Profiles, p.Plans, log),
	)
}
