package steps

import (
	"context"
	"encoding/json"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
	"go.uber.org/zap"
)

// FinalConfirmation is the only step that sets the remote completion flag.
// When that write fails the flow still completes locally so the user is
// never trapped; RemoteSynced reports which case happened.
type FinalConfirmation struct {
	profiles profiledomain.Service
	plans    *config.PlanCatalogHolder
	log      *zap.Logger
}

func NewFinalConfirmation(profiles profiledomain.Service, plans *config.PlanCatalogHolder, log *zap.Logger) *FinalConfirmation {
	return &FinalConfirmation{profiles: profiles, plans: plans, log: log}
}

func (s *FinalConfirmation) ID() domain.StepID { return domain.StepFinalConfirmation }

func (s *FinalConfirmation) Render(user authdomain.SessionUser, data domain.Data) View {
	summary := map[string]any{
		domain.KeyEmail:            user.Email,
		domain.KeySelectedPlan:     data.String(domain.KeySelectedPlan),
		domain.KeyBillingCycle:     data.String(domain.KeyBillingCycle),
		domain.KeyOrganizationName: data.String(domain.KeyOrganizationName),
		domain.KeyOrganizationRole: data.String(domain.KeyOrganizationRole),
		domain.KeyFullName:         data.String(domain.KeyFullName),
		"inviteCount":              len(InvitesFromData(data)),
	}
	if plan, ok := s.plans.Lookup(data.String(domain.KeySelectedPlan)); ok {
		summary["planName"] = plan.Name
	}
	return View{
		Step:    s.ID(),
		Title:   "You're all set",
		Fields:  summary,
		Actions: []string{"finish", "back"},
	}
}

func (s *FinalConfirmation) Submit(ctx context.Context, sc StepContext, _ json.RawMessage) (Outcome, error) {
	synced := true
	if err := s.profiles.MarkOnboardingCompleted(ctx, sc.User.ID); err != nil {
		s.log.Warn("onboarding completion flag not saved; completing locally", zap.String("user_id", sc.User.ID), zap.Error(err))
		synced = false
	}
	return Outcome{
		Patch:        domain.Data{domain.KeyRemoteSynced: synced},
		Complete:     true,
		RemoteSynced: synced,
	}, nil
}
