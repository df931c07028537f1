package steps

import (
	"context"
	"encoding/json"
	"strings"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

type planInput struct {
	SelectedPlan string `json:"selectedPlan"`
	BillingCycle string `json:"billingCycle"`
}

// PlanSelection is a local choice against the pricing table. It makes no
// remote call.
type PlanSelection struct {
	plans *config.PlanCatalogHolder
}

func NewPlanSelection(plans *config.PlanCatalogHolder) *PlanSelection {
	return &PlanSelection{plans: plans}
}

func (s *PlanSelection) ID() domain.StepID { return domain.StepPlanSelection }

func (s *PlanSelection) Render(_ authdomain.SessionUser, data domain.Data) View {
	catalog := s.plans.Get()
	selected := data.String(domain.KeySelectedPlan)
	if selected == "" {
		selected = catalog.DefaultPlan
	}
	cycle := data.String(domain.KeyBillingCycle)
	if cycle == "" {
		cycle = config.BillingCycleMonthly
	}
	return View{
		Step:  s.ID(),
		Title: "Choose a plan",
		Fields: map[string]any{
			domain.KeySelectedPlan: selected,
			domain.KeyBillingCycle: cycle,
		},
		Options: s.plans.List(),
		Actions: []string{"continue", "back"},
	}
}

func (s *PlanSelection) Submit(_ context.Context, _ StepContext, raw json.RawMessage) (Outcome, error) {
	var input planInput
	if err := decodeInput(raw, &input); err != nil {
		return Outcome{}, err
	}

	planID := strings.ToLower(strings.TrimSpace(input.SelectedPlan))
	if planID == "" {
		return Outcome{}, domain.NewValidationError(domain.KeySelectedPlan, "required", "Pick a plan to continue.")
	}
	plan, ok := s.plans.Lookup(planID)
	if !ok {
		return Outcome{}, domain.NewValidationError(domain.KeySelectedPlan, "unknown_plan", "That plan is not available.")
	}

	cycle := strings.ToLower(strings.TrimSpace(input.BillingCycle))
	if cycle == "" {
		cycle = config.BillingCycleMonthly
	}
	price, ok := plan.PriceFor(cycle)
	if !ok {
		return Outcome{}, domain.NewValidationError(domain.KeyBillingCycle, "invalid_billing_cycle", "Billing cycle must be monthly or yearly.")
	}

	return Outcome{Patch: domain.Data{
		domain.KeySelectedPlan: plan.ID,
		domain.KeyBillingCycle: cycle,
		domain.KeyPlanPrice:    price,
		domain.KeyPlanCurrency: plan.Currency,
	}}, nil
}
