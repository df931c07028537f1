package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/auth/session"
	"github.com/smallbiznis/launchpad/internal/authorization"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/onboarding"
	"github.com/smallbiznis/launchpad/internal/onboarding/gate"
	"github.com/smallbiznis/launchpad/internal/onboarding/onboardingtest"
	"github.com/smallbiznis/launchpad/internal/onboarding/progress"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
	organizationdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testUserID = "1001"

type testServer struct {
	router      *gin.Engine
	auth        *onboardingtest.Auth
	profiles    *onboardingtest.Profiles
	orgs        *onboardingtest.Organizations
	invitations *onboardingtest.Invitations
}

func newTestServer(t *testing.T) *testServer {
	return newTestServerWithAuthz(t, onboardingtest.Authorizer{})
}

func newTestServerWithAuthz(t *testing.T, authz authorization.Service) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	ts := &testServer{
		router:      gin.New(),
		auth:        onboardingtest.NewAuth(authdomain.SessionUser{ID: testUserID, Email: "ada@example.com", DisplayName: "Ada"}),
		profiles:    onboardingtest.NewProfiles(),
		orgs:        onboardingtest.NewOrganizations(),
		invitations: &onboardingtest.Invitations{},
	}
	ts.router.Use(ErrorHandlingMiddleware())

	cfg := config.Config{Onboarding: config.OnboardingConfig{FlowCacheSize: 16, FlowTTL: time.Minute}}
	plans := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	registry := steps.NewRegistry(
		steps.NewVerifyEmail(ts.auth, 2*time.Second, log),
		steps.NewPlanSelection(plans),
		steps.NewOrganizationSetup(ts.orgs, log),
		steps.NewTeamInvitation(ts.orgs, onboardingtest.Authorizer{}, ts.invitations, log),
		steps.NewProfileCompletion(ts.profiles),
		steps.NewFinalConfirmation(ts.profiles, plans, log),
	)
	flows := onboarding.NewService(onboarding.Params{
		Log:      log,
		Cfg:      cfg,
		Store:    progress.NewStore(progress.NewMemoryKV(), "onboarding", log, nil),
		Steps:    registry,
		Auth:     ts.auth,
		Profiles: ts.profiles,
		Clock:    clock.SystemClock{},
	})

	NewServer(ServerParams{
		Gin:             ts.router,
		Cfg:             cfg,
		Log:             log,
		Authsvc:         ts.auth,
		Sessions:        session.NewManager(cfg),
		AuthzSvc:        authz,
		OrganizationSvc: ts.orgs,
		InvitationSvc:   ts.invitations,
		OnboardingSvc:   flows,
		Plans:           plans,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload *bytes.Buffer
	if body == nil {
		payload = &bytes.Buffer{}
	} else if raw, ok := body.(string); ok {
		payload = bytes.NewBufferString(raw)
	} else {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(encoded)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer token-"+testUserID)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decodeView(t *testing.T, resp *httptest.ResponseRecorder) gate.View {
	t.Helper()
	var view gate.View
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &view))
	return view
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestOnboardingRequiresSession(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/onboarding", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req = httptest.NewRequest(http.MethodGet, "/onboarding", nil)
	req.Header.Set("Authorization", "Bearer unknown")
	resp = httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestOnboardingFreshUserSeesBannerThenStarts(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/onboarding", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	view := decodeView(t, resp)
	assert.Equal(t, gate.StateBanner, view.State)
	assert.True(t, view.Visible)

	resp = ts.do(t, http.MethodPost, "/onboarding/start", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	view = decodeView(t, resp)
	assert.Equal(t, gate.StateModal, view.State)
	require.NotNil(t, view.Step)
	assert.EqualValues(t, "verify-email", view.Step.ID)
	assert.Equal(t, 0, view.Step.Index)
}

func TestSubmitVerifyEmailRequiresConfirmation(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/onboarding/start", nil).Code)

	resp := ts.do(t, http.MethodPost, "/onboarding/submit", map[string]any{"step": "verify-email"})
	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "email_not_confirmed", payload.Errors[0].Code)

	ts.auth.Confirm(testUserID)
	resp = ts.do(t, http.MethodPost, "/onboarding/submit", map[string]any{"step": "verify-email"})
	require.Equal(t, http.StatusOK, resp.Code)
	view := decodeView(t, resp)
	require.NotNil(t, view.Step)
	assert.EqualValues(t, "plan-selection", view.Step.ID)
	assert.Equal(t, int64(2000), view.Step.AdvanceAfterMs)
}

func TestSubmitRejectsUnknownAndStaleSteps(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/onboarding/start", nil).Code)

	resp := ts.do(t, http.MethodPost, "/onboarding/submit", map[string]any{"step": "billing"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(t, http.MethodPost, "/onboarding/submit", map[string]any{"step": "plan-selection"})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = ts.do(t, http.MethodPost, "/onboarding/submit", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestInvalidTransitionIsConflict(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/onboarding/back", nil)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "conflict", decodeError(t, resp).Type)
}

func TestDeferredOnboardingLocksAPIMutations(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/onboarding/defer", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	view := decodeView(t, resp)
	assert.Equal(t, gate.StateReadOnly, view.State)
	assert.True(t, view.RefreshRequired)
	assert.False(t, view.Interactive)

	resp = ts.do(t, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme"})
	assert.Equal(t, http.StatusLocked, resp.Code)
	assert.Empty(t, ts.orgs.Created)

	resp = ts.do(t, http.MethodGet, "/api/organizations", nil)
	assert.Equal(t, http.StatusOK, resp.Code)

	resp = ts.do(t, http.MethodPost, "/onboarding/resume", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, gate.StateModal, decodeView(t, resp).State)

	resp = ts.do(t, http.MethodPost, "/api/organizations", map[string]any{"name": "Acme"})
	assert.Equal(t, http.StatusCreated, resp.Code)
	assert.Len(t, ts.orgs.Created, 1)
}

func TestDismissAfterDeferIsNoop(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/onboarding/start", nil).Code)

	resp := ts.do(t, http.MethodPost, "/onboarding/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, gate.StateReadOnly, decodeView(t, resp).State)

	resp = ts.do(t, http.MethodPost, "/onboarding/dismiss", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, gate.StateReadOnly, decodeView(t, resp).State)
}

func TestResendVerification(t *testing.T) {
	ts := newTestServer(t)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/onboarding/start", nil).Code)

	resp := ts.do(t, http.MethodPost, "/onboarding/verify-email/resend", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	view := decodeView(t, resp)
	require.NotNil(t, view.Resend)
	assert.NotNil(t, view.Resend.SentAt)
	assert.Equal(t, []string{testUserID}, ts.auth.Resends)

	ts.auth.ResendFn = func(string) error { return authdomain.ErrResendThrottled }
	resp = ts.do(t, http.MethodPost, "/onboarding/verify-email/resend", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.Code)
}

func TestListPlans(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/onboarding/plans", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		DefaultPlan string        `json:"default_plan"`
		Data        []config.Plan `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "starter", body.DefaultPlan)
	assert.Len(t, body.Data, len(config.DefaultPlanCatalog().Plans))
}

func TestMeIncludesOnboardingView(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/auth/me", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		User       authdomain.SessionUser `json:"user"`
		Onboarding gate.View              `json:"onboarding"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, testUserID, body.User.ID)
	assert.Equal(t, gate.StateBanner, body.Onboarding.State)
}

func TestSendInvitation(t *testing.T) {
	ts := newTestServer(t)
	org, err := ts.orgs.Create(context.Background(), 1001, organizationdomain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)

	resp := ts.do(t, http.MethodPost, "/invitations/send", map[string]any{
		"organizationId":   org.ID,
		"organizationName": "Any Org I Never Joined",
		"email":            "grace@example.com",
		"role":             "member",
		"inviterName":      "Ada",
	})
	require.Equal(t, http.StatusAccepted, resp.Code)
	require.Len(t, ts.invitations.Sent, 1)
	assert.Equal(t, "Acme", ts.invitations.Sent[0].OrganizationName)

	resp = ts.do(t, http.MethodPost, "/invitations/send", map[string]any{
		"email": "grace@example.com",
		"role":  "member",
	})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = ts.do(t, http.MethodPost, "/invitations/send", map[string]any{
		"organizationId": "404",
		"email":          "grace@example.com",
		"role":           "member",
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = ts.do(t, http.MethodPost, "/invitations/send", "[]")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Len(t, ts.invitations.Sent, 1)
}

func TestSendInvitationRequiresOrgPermission(t *testing.T) {
	ts := newTestServerWithAuthz(t, onboardingtest.Authorizer{Deny: true})

	resp := ts.do(t, http.MethodPost, "/invitations/send", map[string]any{
		"organizationId": "1001",
		"email":          "grace@example.com",
		"role":           "member",
	})
	assert.Equal(t, http.StatusForbidden, resp.Code)
	assert.Equal(t, "forbidden", decodeError(t, resp).Type)
	assert.Empty(t, ts.invitations.Sent)
}

func TestSendInvitationBlockedWhileDeferred(t *testing.T) {
	ts := newTestServer(t)
	org, err := ts.orgs.Create(context.Background(), 1001, organizationdomain.CreateOrganizationRequest{Name: "Acme"})
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/onboarding/defer", nil).Code)

	resp := ts.do(t, http.MethodPost, "/invitations/send", map[string]any{
		"organizationId": org.ID,
		"email":          "grace@example.com",
		"role":           "member",
	})
	assert.Equal(t, http.StatusLocked, resp.Code)
	assert.Empty(t, ts.invitations.Sent)
}

func TestUnknownRouteReturnsJSONNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "not_found", decodeError(t, resp).Type)
}
