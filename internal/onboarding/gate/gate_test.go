package gate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/onboardingtest"
	"github.com/smallbiznis/launchpad/internal/onboarding/progress"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const userID = "1001"

type fixture struct {
	t           *testing.T
	kv          progress.KV
	store       *progress.Store
	auth        *onboardingtest.Auth
	profiles    *onboardingtest.Profiles
	orgs        *onboardingtest.Organizations
	invitations *onboardingtest.Invitations
	registry    *steps.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	kv := progress.NewMemoryKV()
	f := &fixture{
		t:           t,
		kv:          kv,
		store:       progress.NewStore(kv, "onboarding", log, nil),
		auth:        onboardingtest.NewAuth(authdomain.SessionUser{ID: userID, Email: "ada@example.com", DisplayName: "Ada"}),
		profiles:    onboardingtest.NewProfiles(),
		orgs:        onboardingtest.NewOrganizations(),
		invitations: &onboardingtest.Invitations{},
	}
	plans := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog())
	f.registry = steps.NewRegistry(
		steps.NewVerifyEmail(f.auth, 2*time.Second, log),
		steps.NewPlanSelection(plans),
		steps.NewOrganizationSetup(f.orgs, log),
		steps.NewTeamInvitation(f.orgs, onboardingtest.Authorizer{}, f.invitations, log),
		steps.NewProfileCompletion(f.profiles),
		steps.NewFinalConfirmation(f.profiles, plans, log),
	)
	return f
}

func (f *fixture) gate() *Gate {
	return New(Deps{
		Store:    f.store,
		Steps:    f.registry,
		Auth:     f.auth,
		Profiles: f.profiles,
		Clock:    clock.NewFakeClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		Log:      zaptest.NewLogger(f.t),
	}, authdomain.SessionUser{ID: userID, Email: "ada@example.com"})
}

func (f *fixture) seed(status domain.Status, index int, data domain.Data) {
	f.store.Save(context.Background(), userID, domain.Patch{Status: &status, Index: &index, Data: data})
}

func (f *fixture) hasKey(field string) bool {
	_, ok, err := f.kv.Get(context.Background(), f.store.Key(userID, field))
	require.NoError(f.t, err)
	return ok
}

func submit(t *testing.T, g *Gate, step domain.StepID, body string) View {
	t.Helper()
	var raw json.RawMessage
	if body != "" {
		raw = json.RawMessage(body)
	}
	view, err := g.Submit(context.Background(), step, raw)
	require.NoError(t, err)
	return view
}

func TestFreshUserSeesBannerThenStartsAtVerifyEmail(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()

	view := g.Check(ctx)
	assert.Equal(t, StateBanner, view.State)
	assert.Equal(t, domain.StatusNotStarted, view.Status)
	assert.True(t, view.Visible)
	assert.Nil(t, view.Step)

	view, err := g.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateModal, view.State)
	require.NotNil(t, view.Step)
	assert.Equal(t, 0, view.Step.Index)
	assert.Equal(t, domain.StepVerifyEmail, view.Step.ID)
	assert.Equal(t, domain.StatusInProgress, f.store.Load(ctx, userID).Status)
}

func TestResumeFromStoredProgress(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 2, domain.Data{domain.KeySelectedPlan: "team"})
	g := f.gate()
	ctx := context.Background()

	view := g.Check(ctx)
	assert.Equal(t, StateModal, view.State)
	require.NotNil(t, view.Step)
	assert.Equal(t, domain.StepOrganizationSetup, view.Step.ID)
	assert.Equal(t, "team", view.Data.String(domain.KeySelectedPlan))

	view, err := g.Back(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepPlanSelection, view.Step.ID)
	assert.Equal(t, "team", view.Step.Screen.Fields[domain.KeySelectedPlan])
	assert.Equal(t, 1, f.store.Load(ctx, userID).Index)
}

func TestDeferThenResumeKeepsIndex(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)
	_, err := g.Start(ctx)
	require.NoError(t, err)
	f.auth.Confirm(userID)
	submit(t, g, domain.StepVerifyEmail, "")

	view, err := g.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadOnly, view.State)
	assert.True(t, view.RefreshRequired)
	assert.False(t, view.Interactive)
	assert.False(t, g.AllowsInteraction())
	assert.Equal(t, domain.StatusDeferred, f.store.Load(ctx, userID).Status)
	assert.Equal(t, 1, f.store.Load(ctx, userID).Index)

	view, err = g.Dismiss(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadOnly, view.State)

	view, err = g.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateModal, view.State)
	assert.Equal(t, 1, view.Step.Index)
	assert.True(t, g.AllowsInteraction())
	assert.Equal(t, domain.StatusInProgress, f.store.Load(ctx, userID).Status)
}

func TestCompleteLaterFromBanner(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)

	view, err := g.Defer(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateReadOnly, view.State)
	assert.True(t, view.RefreshRequired)

	_, err = g.Submit(ctx, "", nil)
	assert.ErrorIs(t, err, domain.ErrReadOnly)

	reloaded := f.gate()
	assert.Equal(t, StateReadOnly, reloaded.Check(ctx).State)
	view, err = reloaded.Resume(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StepVerifyEmail, view.Step.ID)
}

func TestInviteValidationLeavesListUnchanged(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 3, domain.Data{domain.KeyOrganizationID: "55", domain.KeyOrganizationName: "Acme"})
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)

	_, err := g.AddInvite(ctx, steps.Invite{Email: "not-an-email"})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid_email", verr.Code)
	assert.Empty(t, steps.InvitesFromData(g.View().Data))

	_, err = g.AddInvite(ctx, steps.Invite{Email: "a@b.com"})
	require.NoError(t, err)
	_, err = g.AddInvite(ctx, steps.Invite{Email: "a@b.com"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "duplicate_invite", verr.Code)
	assert.Len(t, steps.InvitesFromData(g.View().Data), 1)

	reloaded := steps.InvitesFromData(f.store.Load(ctx, userID).Data)
	assert.Equal(t, steps.InviteList{{Email: "a@b.com", Role: steps.InviteRoleMember}}, reloaded)

	view, err := g.RemoveInvite(ctx, "a@b.com")
	require.NoError(t, err)
	assert.Empty(t, steps.InvitesFromData(view.Data))
}

func TestFullFlowCompletes(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)
	_, err := g.Start(ctx)
	require.NoError(t, err)

	f.auth.Confirm(userID)
	view := submit(t, g, domain.StepVerifyEmail, "")
	assert.Equal(t, int64(2000), view.Step.AdvanceAfterMs)
	view = submit(t, g, domain.StepPlanSelection, `{"selectedPlan":"team","billingCycle":"monthly"}`)
	assert.Zero(t, view.Step.AdvanceAfterMs)
	submit(t, g, domain.StepOrganizationSetup, `{"kind":"create","name":"Acme"}`)
	_, err = g.AddInvite(ctx, steps.Invite{Email: "bob@example.com"})
	require.NoError(t, err)
	submit(t, g, domain.StepTeamInvitation, "")
	view = submit(t, g, domain.StepProfileCompletion, `{"fullName":"Ada Lovelace"}`)
	assert.Equal(t, domain.StepFinalConfirmation, view.Step.ID)
	assert.Equal(t, "Acme", view.Step.Screen.Fields[domain.KeyOrganizationName])
	assert.InDelta(t, 1.0, view.Step.Progress, 1e-9)

	view = submit(t, g, domain.StepFinalConfirmation, "")
	assert.Equal(t, StateHidden, view.State)
	assert.False(t, view.Visible)
	require.NotNil(t, view.RemoteSynced)
	assert.True(t, *view.RemoteSynced)

	assert.True(t, f.profiles.Completed(userID))
	assert.Equal(t, domain.StatusCompleted, f.store.Load(ctx, userID).Status)
	assert.False(t, f.hasKey("step"))
	assert.False(t, f.hasKey("data"))
	require.Len(t, f.invitations.Sent, 1)

	next := f.gate()
	assert.Equal(t, StateHidden, next.Check(ctx).State)

	_, err = g.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestFinalConfirmationFallbackIsRepairedOnNextCheck(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 5, domain.Data{})
	f.profiles.MarkErr = onboardingtest.ErrUnavailable
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)

	view := submit(t, g, domain.StepFinalConfirmation, "")
	assert.Equal(t, StateHidden, view.State)
	require.NotNil(t, view.RemoteSynced)
	assert.False(t, *view.RemoteSynced)
	assert.False(t, f.profiles.Completed(userID))
	assert.Equal(t, domain.StatusCompleted, f.store.Load(ctx, userID).Status)

	f.profiles.MarkErr = nil
	next := f.gate()
	view = next.Check(ctx)
	assert.Equal(t, StateHidden, view.State)
	assert.True(t, f.profiles.Completed(userID))
	assert.Equal(t, 2, f.profiles.Marks)
}

func TestRemoteFlagForcesCompleted(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 2, domain.Data{"selectedPlan": "team"})
	f.profiles.SetCompleted(userID, true)
	g := f.gate()
	ctx := context.Background()

	view := g.Check(ctx)
	assert.Equal(t, StateHidden, view.State)
	assert.Equal(t, domain.StatusCompleted, f.store.Load(ctx, userID).Status)
	assert.False(t, f.hasKey("data"))
}

func TestRemoteFailureFallsBackToLocalStatus(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 1, domain.Data{})
	f.profiles.ReadErr = onboardingtest.ErrUnavailable
	f.auth.GetErr = onboardingtest.ErrUnavailable

	view := f.gate().Check(context.Background())
	assert.Equal(t, StateModal, view.State)
	assert.Equal(t, domain.StepPlanSelection, view.Step.ID)
}

func TestFailedSubmitChangesNothing(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 1, domain.Data{"keep": "me"})
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)

	view, err := g.Submit(ctx, domain.StepPlanSelection, json.RawMessage(`{"selectedPlan":"platinum"}`))
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, view.Step.Index)
	assert.Equal(t, domain.Data{"keep": "me"}, view.Data)
	assert.Equal(t, domain.Data{"keep": "me"}, f.store.Load(ctx, userID).Data)

	_, err = g.Submit(ctx, domain.StepVerifyEmail, nil)
	assert.ErrorIs(t, err, domain.ErrStepMismatch)
}

func TestResetReturnsToBanner(t *testing.T) {
	f := newFixture(t)
	f.seed(domain.StatusInProgress, 4, domain.Data{"selectedPlan": "team"})
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)

	view, err := g.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateBanner, view.State)
	assert.False(t, f.hasKey("status"))
	assert.False(t, f.hasKey("step"))
	assert.False(t, f.hasKey("data"))

	view, err = g.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Step.Index)
	assert.Empty(t, view.Data)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()

	_, err := g.Start(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	g.Check(ctx)
	_, err = g.Resume(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = g.Dismiss(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	_, err = g.Back(ctx)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	assert.True(t, CanTransition(StateCheckingRemote, StateHidden))
	assert.False(t, CanTransition(StateHidden, StateModal))
}

func TestResendSubState(t *testing.T) {
	f := newFixture(t)
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)
	_, err := g.Start(ctx)
	require.NoError(t, err)

	view, err := g.ResendVerification(ctx)
	require.NoError(t, err)
	require.NotNil(t, view.Resend)
	assert.NotNil(t, view.Resend.SentAt)
	assert.False(t, view.Resend.Pending)

	f.auth.ResendFn = func(string) error { return authdomain.ErrResendThrottled }
	view, err = g.ResendVerification(ctx)
	assert.ErrorIs(t, err, authdomain.ErrResendThrottled)
	assert.NotEmpty(t, view.Resend.Error)
}

type blockingStep struct {
	steps.Step
	release chan struct{}
	entered chan struct{}
}

func (s *blockingStep) Submit(ctx context.Context, sc steps.StepContext, raw json.RawMessage) (steps.Outcome, error) {
	close(s.entered)
	<-s.release
	return steps.Outcome{Patch: domain.Data{"done": true}}, nil
}

func TestSecondSubmitWhilePendingIsRejected(t *testing.T) {
	f := newFixture(t)
	verify, _ := f.registry.Get(domain.StepVerifyEmail)
	blocking := &blockingStep{Step: verify, release: make(chan struct{}), entered: make(chan struct{})}
	f.registry = steps.NewRegistry(blocking)
	g := f.gate()
	ctx := context.Background()
	g.Check(ctx)
	_, err := g.Start(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := g.Submit(ctx, domain.StepVerifyEmail, nil)
		done <- err
	}()
	<-blocking.entered

	assert.True(t, g.View().Pending)
	_, err = g.Submit(ctx, domain.StepVerifyEmail, nil)
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)
	_, err = g.Dismiss(ctx)
	assert.ErrorIs(t, err, domain.ErrSubmissionInFlight)

	close(blocking.release)
	require.NoError(t, <-done)
	view := g.View()
	assert.False(t, view.Pending)
	assert.Equal(t, 1, view.Step.Index)
}

type failingKV struct{}

func (failingKV) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("storage disabled")
}
func (failingKV) Set(context.Context, string, string) error { return errors.New("quota exceeded") }
func (failingKV) Delete(context.Context, ...string) error   { return errors.New("storage disabled") }

func TestStorageFailureKeepsFlowWorking(t *testing.T) {
	f := newFixture(t)
	f.store = progress.NewStore(failingKV{}, "onboarding", zaptest.NewLogger(t), nil)
	g := f.gate()
	ctx := context.Background()

	assert.Equal(t, StateBanner, g.Check(ctx).State)
	_, err := g.Start(ctx)
	require.NoError(t, err)
	f.auth.Confirm(userID)
	view := submit(t, g, domain.StepVerifyEmail, "")
	assert.Equal(t, domain.StepPlanSelection, view.Step.ID)
	assert.Equal(t, true, view.Data[domain.KeyEmailVerified])
}
