package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	"github.com/smallbiznis/launchpad/internal/observability/tracing"
	"github.com/smallbiznis/launchpad/internal/onboarding/accumulator"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/sequencer"
	"github.com/smallbiznis/launchpad/internal/onboarding/steps"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Deps struct {
	Store    domain.ProgressStore
	Steps    *steps.Registry
	Auth     authdomain.Service
	Profiles profiledomain.Service
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics
	// InFlight is shared by every gate of a process so a rebuilt gate
	// cannot run a step its predecessor is still submitting.
	InFlight *InFlight
}

// Gate owns one user's onboarding state. The in-memory state is canonical;
// the progress store is written right after every change. All methods are
// safe for concurrent use and serialize like UI events. A remote call in
// flight rejects further mutations with ErrSubmissionInFlight.
type Gate struct {
	deps   Deps
	log    *zap.Logger
	userID string

	mu           sync.Mutex
	user         authdomain.SessionUser
	state        State
	status       domain.Status
	seq          *sequencer.Sequencer
	acc          *accumulator.Accumulator
	pending      bool
	advanceAfter time.Duration
	resend       ResendView
	remoteSynced *bool
	stale        bool
}

func New(deps Deps, user authdomain.SessionUser) *Gate {
	if deps.Clock == nil {
		deps.Clock = clock.SystemClock{}
	}
	g := &Gate{
		deps:   deps,
		log:    deps.Log.Named("onboarding.gate").With(zap.String("user_id", user.ID)),
		userID: user.ID,
		user:   user,
		state:  StateUninitialized,
		status: domain.StatusNotStarted,
	}
	g.seq = sequencer.New(domain.Steps, 0, g.persistIndex)
	g.acc = accumulator.New(nil, g.persistData)
	return g
}

// Check runs once: it loads local progress, reads the remote completion
// flag and settles on a visible state. Later calls return the current view.
func (g *Gate) Check(ctx context.Context) View {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stale && !g.pending {
		g.stale = false
		g.state = StateUninitialized
	}
	if g.state != StateUninitialized {
		return g.view()
	}
	_ = g.transition(ctx, StateCheckingRemote)

	ctx, span := tracing.StartSpan(ctx, "onboarding.gate.check")
	defer span.End()
	log := logger.WithContext(ctx, g.log)

	if user, err := g.deps.Auth.GetUser(ctx, g.userID); err != nil {
		log.Warn("session refetch failed; using cached user", zap.Error(err))
	} else {
		g.user = *user
	}

	snap := g.deps.Store.Load(ctx, g.userID)
	g.status = snap.Status
	g.seq = sequencer.New(domain.Steps, snap.Index, g.persistIndex)
	g.acc = accumulator.New(snap.Data, g.persistData)

	remote, err := g.deps.Profiles.OnboardingCompleted(ctx, g.userID)
	switch {
	case err != nil:
		log.Warn("remote onboarding flag unavailable; using local status", zap.String("status", string(g.status)), zap.Error(err))
	case remote:
		if g.status != domain.StatusCompleted {
			g.setStatus(ctx, domain.StatusCompleted)
			g.deps.Store.ClearProgress(ctx, g.userID)
		}
		synced := true
		g.remoteSynced = &synced
	case g.status == domain.StatusCompleted:
		g.repairRemoteFlag(ctx, log)
	}

	next := stateForStatus(g.status)
	if next == StateHidden {
		g.acc.Reset()
	}
	_ = g.transition(ctx, next)
	span.SetAttributes(attribute.String("onboarding.gate_state", string(next)))
	return g.view()
}

// Start opens the flow from the banner.
func (g *Gate) Start(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(StateBanner); err != nil {
		return g.view(), err
	}
	g.setStatus(ctx, domain.StatusInProgress)
	_ = g.transition(ctx, StateModal)
	return g.view(), nil
}

// Defer is "complete later" from the banner. The rest of the application
// becomes read-only.
func (g *Gate) Defer(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(StateBanner); err != nil {
		return g.view(), err
	}
	g.setStatus(ctx, domain.StatusDeferred)
	_ = g.transition(ctx, StateReadOnly)
	v := g.view()
	v.RefreshRequired = true
	return v, nil
}

// Dismiss closes the modal mid-flow and defers. It is a no-op while the
// status is already deferred.
func (g *Gate) Dismiss(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == domain.StatusDeferred && g.state == StateReadOnly {
		return g.view(), nil
	}
	if err := g.begin(StateModal); err != nil {
		return g.view(), err
	}
	g.setStatus(ctx, domain.StatusDeferred)
	_ = g.transition(ctx, StateReadOnly)
	v := g.view()
	v.RefreshRequired = true
	return v, nil
}

// Resume reopens the flow at the step it was deferred on.
func (g *Gate) Resume(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(StateReadOnly); err != nil {
		return g.view(), err
	}
	g.setStatus(ctx, domain.StatusInProgress)
	_ = g.transition(ctx, StateModal)
	v := g.view()
	v.RefreshRequired = true
	return v, nil
}

// Reset clears all persisted progress and returns to the banner.
func (g *Gate) Reset(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(StateBanner, StateModal, StateReadOnly); err != nil {
		return g.view(), err
	}
	wasReadOnly := g.state == StateReadOnly
	g.deps.Store.Clear(ctx, g.userID)
	g.status = domain.StatusNotStarted
	g.acc.Reset()
	g.seq = sequencer.New(domain.Steps, 0, g.persistIndex)
	g.resend = ResendView{}
	g.remoteSynced = nil
	_ = g.transition(ctx, StateBanner)
	v := g.view()
	v.RefreshRequired = wasReadOnly
	return v, nil
}

// Back moves to the previous step.
func (g *Gate) Back(ctx context.Context) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(StateModal); err != nil {
		return g.view(), err
	}
	g.seq.Retreat(ctx)
	return g.view(), nil
}

// Submit runs the current step. stepID guards against stale clients and
// may be empty. On success the patch is merged and persisted before the
// index advances; on failure nothing changes.
func (g *Gate) Submit(ctx context.Context, stepID domain.StepID, raw json.RawMessage) (View, error) {
	g.mu.Lock()
	if err := g.begin(StateModal); err != nil {
		defer g.mu.Unlock()
		return g.view(), err
	}
	current := g.seq.Current()
	if stepID != "" && stepID != current {
		defer g.mu.Unlock()
		return g.view(), domain.ErrStepMismatch
	}
	step, ok := g.deps.Steps.Get(current)
	if !ok {
		defer g.mu.Unlock()
		return g.view(), domain.ErrUnknownStep
	}
	if !g.deps.InFlight.acquire(g.userID) {
		defer g.mu.Unlock()
		return g.view(), domain.ErrSubmissionInFlight
	}
	sc := steps.StepContext{User: g.user, Data: g.acc.Value()}
	g.pending = true
	g.mu.Unlock()

	outcome, err := g.runStep(ctx, step, sc, raw)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = false
	g.deps.InFlight.release(g.userID)
	if err != nil {
		g.deps.Metrics.RecordStepSubmission(ctx, string(current), outcomeLabel(err))
		return g.view(), err
	}

	if outcome.User != nil {
		g.user = *outcome.User
	}
	g.acc.Update(ctx, outcome.Patch)
	if outcome.Complete {
		g.complete(ctx, outcome.RemoteSynced)
		g.deps.Metrics.RecordStepSubmission(ctx, string(current), "completed")
		return g.view(), nil
	}
	g.seq.Advance(ctx)
	g.advanceAfter = outcome.AdvanceAfter
	g.deps.Metrics.RecordStepSubmission(ctx, string(current), "advanced")
	return g.view(), nil
}

func (g *Gate) runStep(ctx context.Context, step steps.Step, sc steps.StepContext, raw json.RawMessage) (steps.Outcome, error) {
	ctx, span := tracing.StartSpan(ctx, "onboarding.step.submit", attribute.String("onboarding.step", string(step.ID())))
	defer span.End()

	outcome, err := step.Submit(ctx, sc, raw)
	if err != nil {
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, outcomeLabel(err))
		logger.WithContext(ctx, g.log).Info("onboarding step rejected",
			zap.String("step", string(step.ID())),
			zap.String("outcome", outcomeLabel(err)),
			zap.Error(tracing.SafeError(err)),
		)
	}
	return outcome, err
}

// AddInvite appends to the team invitation draft list.
func (g *Gate) AddInvite(ctx context.Context, invite steps.Invite) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	editor, err := g.inviteEditor()
	if err != nil {
		return g.view(), err
	}
	patch, err := editor.AddInvite(g.acc.Value(), invite)
	if err != nil {
		return g.view(), err
	}
	g.acc.Update(ctx, patch)
	return g.view(), nil
}

func (g *Gate) RemoveInvite(ctx context.Context, email string) (View, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	editor, err := g.inviteEditor()
	if err != nil {
		return g.view(), err
	}
	g.acc.Update(ctx, editor.RemoveInvite(g.acc.Value(), email))
	return g.view(), nil
}

func (g *Gate) inviteEditor() (steps.InviteEditor, error) {
	if err := g.begin(StateModal); err != nil {
		return nil, err
	}
	if g.seq.Current() != domain.StepTeamInvitation {
		return nil, domain.ErrStepMismatch
	}
	step, _ := g.deps.Steps.Get(domain.StepTeamInvitation)
	editor, ok := step.(steps.InviteEditor)
	if !ok {
		return nil, domain.ErrUnknownStep
	}
	return editor, nil
}

// ResendVerification sends a new confirmation email. It has its own
// pending flag so the rest of the step stays usable.
func (g *Gate) ResendVerification(ctx context.Context) (View, error) {
	g.mu.Lock()
	verifier, err := g.verifier()
	if err != nil {
		defer g.mu.Unlock()
		return g.view(), err
	}
	if g.resend.Pending {
		defer g.mu.Unlock()
		return g.view(), domain.ErrSubmissionInFlight
	}
	g.resend = ResendView{Pending: true}
	user := g.user
	g.mu.Unlock()

	err = verifier.Resend(ctx, user)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.resend.Pending = false
	if err != nil {
		g.resend.Error = resendMessage(err)
		return g.view(), err
	}
	now := g.deps.Clock.Now()
	g.resend.SentAt = &now
	return g.view(), nil
}

// WaitForVerification blocks until the email is confirmed or ctx ends,
// then submits the verify-email step.
func (g *Gate) WaitForVerification(ctx context.Context) (View, error) {
	g.mu.Lock()
	verifier, err := g.verifier()
	if err == nil && g.pending {
		err = domain.ErrSubmissionInFlight
	}
	if err != nil {
		defer g.mu.Unlock()
		return g.view(), err
	}
	g.mu.Unlock()

	user, err := verifier.WaitForConfirmation(ctx, g.userID)
	if err != nil {
		return g.View(), err
	}

	g.mu.Lock()
	g.user = *user
	g.mu.Unlock()
	return g.Submit(ctx, domain.StepVerifyEmail, nil)
}

func (g *Gate) verifier() (steps.Verifier, error) {
	if g.state != StateModal {
		return nil, g.wrongState()
	}
	if g.seq.Current() != domain.StepVerifyEmail {
		return nil, domain.ErrStepMismatch
	}
	step, _ := g.deps.Steps.Get(domain.StepVerifyEmail)
	verifier, ok := step.(steps.Verifier)
	if !ok {
		return nil, domain.ErrUnknownStep
	}
	return verifier, nil
}

// Invalidate makes the next Check reload the session user, stored progress
// and remote flag. A gate with a submission running reloads once it settles.
func (g *Gate) Invalidate() {
	g.mu.Lock()
	g.stale = true
	g.mu.Unlock()
}

// Busy reports whether a step submission is running.
func (g *Gate) Busy() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending
}

func (g *Gate) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.view()
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// AllowsInteraction is false only while onboarding is deferred.
func (g *Gate) AllowsInteraction() bool {
	return g.State() != StateReadOnly
}

// begin checks that a mutation may start from the current state and
// clears one-shot view hints. Callers hold mu.
func (g *Gate) begin(from ...State) error {
	if g.pending {
		return domain.ErrSubmissionInFlight
	}
	for _, s := range from {
		if g.state == s {
			g.advanceAfter = 0
			return nil
		}
	}
	return g.wrongState()
}

func (g *Gate) wrongState() error {
	if g.state == StateReadOnly {
		return domain.ErrReadOnly
	}
	return fmt.Errorf("%w: gate is %s", domain.ErrInvalidTransition, g.state)
}

func (g *Gate) transition(ctx context.Context, to State) error {
	if err := validateTransition(g.state, to); err != nil {
		return err
	}
	from := g.state
	g.state = to
	g.deps.Metrics.RecordGateTransition(ctx, string(from), string(to))
	logger.WithContext(ctx, g.log).Debug("onboarding gate transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return nil
}

func (g *Gate) setStatus(ctx context.Context, status domain.Status) {
	g.status = status
	g.deps.Store.Save(ctx, g.userID, domain.StatusPatch(status))
}

// complete marks the flow done: local status, then cleared step and data.
func (g *Gate) complete(ctx context.Context, remoteSynced bool) {
	g.setStatus(ctx, domain.StatusCompleted)
	g.deps.Store.ClearProgress(ctx, g.userID)
	g.acc.Reset()
	g.remoteSynced = &remoteSynced
	_ = g.transition(ctx, StateHidden)
	g.deps.Metrics.RecordCompletion(ctx, remoteSynced)
	logger.WithContext(ctx, g.log).Info("onboarding completed", zap.Bool("remote_synced", remoteSynced))
}

func (g *Gate) repairRemoteFlag(ctx context.Context, log *zap.Logger) {
	synced := true
	if err := g.deps.Profiles.MarkOnboardingCompleted(ctx, g.userID); err != nil {
		log.Warn("remote onboarding flag still unsynced", zap.Error(err))
		synced = false
	} else {
		log.Info("remote onboarding flag repaired")
	}
	g.remoteSynced = &synced
}

func (g *Gate) persistIndex(ctx context.Context, index int) {
	g.deps.Store.Save(ctx, g.userID, domain.IndexPatch(index))
}

func (g *Gate) persistData(ctx context.Context, data domain.Data) {
	g.deps.Store.Save(ctx, g.userID, domain.DataPatch(data))
}

func (g *Gate) view() View {
	v := View{
		State:        g.state,
		Status:       g.status,
		Visible:      g.state == StateBanner || g.state == StateModal || g.state == StateReadOnly,
		Interactive:  g.state != StateReadOnly,
		Pending:      g.pending,
		RemoteSynced: g.remoteSynced,
	}
	if g.state != StateModal {
		return v
	}

	current := g.seq.Current()
	data := g.acc.Value()
	stepView := &StepView{
		ID:             current,
		Index:          g.seq.Index(),
		Total:          g.seq.Total(),
		Progress:       g.seq.ProgressFraction(),
		AdvanceAfterMs: g.advanceAfter.Milliseconds(),
	}
	if step, ok := g.deps.Steps.Get(current); ok {
		stepView.Screen = step.Render(g.user, data)
	}
	v.Step = stepView
	v.Data = data
	if current == domain.StepVerifyEmail {
		resend := g.resend
		v.Resend = &resend
	}
	return v
}

func outcomeLabel(err error) string {
	var validation *domain.ValidationError
	var remote *domain.RemoteError
	switch {
	case errors.As(err, &validation):
		return "validation_error"
	case errors.As(err, &remote):
		return "remote_error"
	default:
		return "error"
	}
}

func resendMessage(err error) string {
	var remote *domain.RemoteError
	switch {
	case errors.Is(err, authdomain.ErrResendThrottled):
		return "Please wait a minute before requesting another email."
	case errors.Is(err, authdomain.ErrEmailAlreadyConfirmed):
		return "Your email is already confirmed."
	case errors.As(err, &remote) && remote.Message != "":
		return remote.Message
	default:
		return "We could not send the email. Try again in a moment."
	}
}
