package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/gate"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
)

const verificationWaitTimeout = 30 * time.Second

type submitStepRequest struct {
	Step string          `json:"step"`
	Data json.RawMessage `json:"data"`
}

type removeInviteRequest struct {
	Email string `json:"email"`
}

func (s *Server) GetOnboarding(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, flow.View())
}

func (s *Server) ListPlans(c *gin.Context) {
	catalog := s.plans.Get()
	c.JSON(http.StatusOK, gin.H{
		"default_plan": catalog.DefaultPlan,
		"data":         s.plans.List(),
	})
}

func (s *Server) StartOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Start)
}

func (s *Server) DeferOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Defer)
}

func (s *Server) DismissOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Dismiss)
}

func (s *Server) ResumeOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Resume)
}

func (s *Server) ResetOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Reset)
}

func (s *Server) BackOnboarding(c *gin.Context) {
	s.transition(c, (*gate.Gate).Back)
}

func (s *Server) SubmitOnboardingStep(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}

	var req submitStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	stepID := domain.StepID(strings.TrimSpace(req.Step))
	if stepID != "" && domain.IndexOf(stepID) < 0 {
		AbortWithError(c, domain.ErrUnknownStep)
		return
	}
	c.Set("onboarding_step", string(stepID))

	view, err := flow.Submit(c.Request.Context(), stepID, req.Data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) AddOnboardingInvite(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}

	var req steps.Invite
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("onboarding_step", string(domain.StepTeamInvitation))

	view, err := flow.AddInvite(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) RemoveOnboardingInvite(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}

	var req removeInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Email) == "" {
		AbortWithError(c, invalidRequestError())
		return
	}
	c.Set("onboarding_step", string(domain.StepTeamInvitation))

	view, err := flow.RemoveInvite(c.Request.Context(), req.Email)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) ResendVerification(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	c.Set("onboarding_step", string(domain.StepVerifyEmail))

	view, err := flow.ResendVerification(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// WaitForVerification long-polls until the email is confirmed, then
// advances past the verify-email step.
func (s *Server) WaitForVerification(c *gin.Context) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	c.Set("onboarding_step", string(domain.StepVerifyEmail))

	ctx, cancel := context.WithTimeout(c.Request.Context(), verificationWaitTimeout)
	defer cancel()

	view, err := flow.WaitForVerification(ctx)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) transition(c *gin.Context, action func(*gate.Gate, context.Context) (gate.View, error)) {
	flow, ok := s.flow(c)
	if !ok {
		return
	}
	view, err := action(flow, c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) flow(c *gin.Context) (*gate.Gate, bool) {
	user, ok := sessionUser(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return nil, false
	}
	flow, err := s.onboardingSvc.Flow(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return nil, false
	}
	return flow, true
}
