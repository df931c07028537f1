package steps

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/onboardingtest"
	orgdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testUser = authdomain.SessionUser{ID: "1001", Email: "ada@example.com", DisplayName: "Ada"}

func requireValidation(t *testing.T, err error, field, code string) {
	t.Helper()
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, field, verr.Field)
	assert.Equal(t, code, verr.Code)
}

func TestVerifyEmailRequiresConfirmation(t *testing.T) {
	auth := onboardingtest.NewAuth(testUser)
	step := NewVerifyEmail(auth, 2*time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := step.Submit(ctx, StepContext{User: testUser}, nil)
	requireValidation(t, err, domain.KeyEmail, "email_not_confirmed")

	auth.Confirm(testUser.ID)
	outcome, err := step.Submit(ctx, StepContext{User: testUser}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, outcome.AdvanceAfter)
	assert.Equal(t, true, outcome.Patch[domain.KeyEmailVerified])
	require.NotNil(t, outcome.User)
	assert.True(t, outcome.User.EmailConfirmed())
}

func TestVerifyEmailRemoteFailure(t *testing.T) {
	auth := onboardingtest.NewAuth(testUser)
	auth.GetErr = onboardingtest.ErrUnavailable
	step := NewVerifyEmail(auth, time.Second, zaptest.NewLogger(t))

	_, err := step.Submit(context.Background(), StepContext{User: testUser}, nil)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "session.get", remote.Op)
}

func TestVerifyEmailResend(t *testing.T) {
	auth := onboardingtest.NewAuth(testUser)
	step := NewVerifyEmail(auth, time.Second, zaptest.NewLogger(t))
	ctx := context.Background()

	require.NoError(t, step.Resend(ctx, testUser))
	assert.Equal(t, []string{testUser.ID}, auth.Resends)

	auth.ResendFn = func(string) error { return authdomain.ErrResendThrottled }
	assert.ErrorIs(t, step.Resend(ctx, testUser), authdomain.ErrResendThrottled)

	auth.ResendFn = func(string) error { return errors.New("smtp down") }
	var remote *domain.RemoteError
	assert.ErrorAs(t, step.Resend(ctx, testUser), &remote)
}

func TestWaitForConfirmationPolls(t *testing.T) {
	auth := onboardingtest.NewAuth(testUser)
	step := NewVerifyEmail(auth, time.Second, zaptest.NewLogger(t))
	polls := 0
	step.newBackOff = func() backoff.BackOff {
		polls++
		return backoff.NewConstantBackOff(time.Millisecond)
	}
	go func() {
		time.Sleep(5 * time.Millisecond)
		auth.Confirm(testUser.ID)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	user, err := step.WaitForConfirmation(ctx, testUser.ID)
	require.NoError(t, err)
	assert.True(t, user.EmailConfirmed())
	assert.Equal(t, 1, polls)
}

func TestWaitForConfirmationStopsWithContext(t *testing.T) {
	auth := onboardingtest.NewAuth(testUser)
	step := NewVerifyEmail(auth, time.Second, zaptest.NewLogger(t))
	step.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := step.WaitForConfirmation(ctx, testUser.ID)
	requireValidation(t, err, domain.KeyEmail, "email_not_confirmed")
}

func TestPlanSelection(t *testing.T) {
	step := NewPlanSelection(config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()))
	ctx := context.Background()

	outcome, err := step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"selectedPlan":"Team","billingCycle":"yearly"}`))
	require.NoError(t, err)
	assert.Equal(t, "team", outcome.Patch[domain.KeySelectedPlan])
	assert.Equal(t, int64(49_000), outcome.Patch[domain.KeyPlanPrice])

	_, err = step.Submit(ctx, StepContext{}, json.RawMessage(`{}`))
	requireValidation(t, err, domain.KeySelectedPlan, "required")
	_, err = step.Submit(ctx, StepContext{}, json.RawMessage(`{"selectedPlan":"platinum"}`))
	requireValidation(t, err, domain.KeySelectedPlan, "unknown_plan")
	_, err = step.Submit(ctx, StepContext{}, json.RawMessage(`{"selectedPlan":"team","billingCycle":"weekly"}`))
	requireValidation(t, err, domain.KeyBillingCycle, "invalid_billing_cycle")
	_, err = step.Submit(ctx, StepContext{}, json.RawMessage(`{"selectedPlan":`))
	requireValidation(t, err, "", "invalid_payload")

	view := step.Render(testUser, domain.Data{domain.KeySelectedPlan: "team"})
	assert.Equal(t, "team", view.Fields[domain.KeySelectedPlan])
	assert.Equal(t, config.BillingCycleMonthly, view.Fields[domain.KeyBillingCycle])
}

func TestDecodeOrganizationChoice(t *testing.T) {
	choice, err := DecodeOrganizationChoice(json.RawMessage(`{"kind":"create","name":"Acme","inviteCode":"ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, CreateOrganization{Name: "Acme"}, choice)

	choice, err = DecodeOrganizationChoice(json.RawMessage(`{"kind":"join","inviteCode":"ABC","name":"ignored"}`))
	require.NoError(t, err)
	assert.Equal(t, JoinOrganization{InviteCode: "ABC"}, choice)

	_, err = DecodeOrganizationChoice(json.RawMessage(`{"kind":"create","name":"  "}`))
	requireValidation(t, err, domain.KeyOrganizationName, "required")
	_, err = DecodeOrganizationChoice(json.RawMessage(`{"kind":"join"}`))
	requireValidation(t, err, "inviteCode", "required")
	_, err = DecodeOrganizationChoice(json.RawMessage(`{"kind":"merge"}`))
	requireValidation(t, err, domain.KeySetupKind, "invalid_kind")
}

func TestOrganizationSetupBranches(t *testing.T) {
	orgs := onboardingtest.NewOrganizations()
	orgs.AddInviteCode("JOINME", orgdomain.OrganizationResponse{ID: "77", Name: "Globex", Slug: "globex"})
	step := NewOrganizationSetup(orgs, zaptest.NewLogger(t))
	ctx := context.Background()

	outcome, err := step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"create","name":"Acme","slug":"acme"}`))
	require.NoError(t, err)
	assert.Equal(t, "acme", outcome.Patch[domain.KeyOrganizationSlug])
	assert.Equal(t, orgdomain.RoleOwner, outcome.Patch[domain.KeyOrganizationRole])
	assert.Len(t, orgs.Created, 1)

	outcome, err = step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"join","inviteCode":"JOINME"}`))
	require.NoError(t, err)
	assert.Equal(t, "77", outcome.Patch[domain.KeyOrganizationID])
	assert.Equal(t, orgdomain.RoleMember, outcome.Patch[domain.KeyOrganizationRole])

	_, err = step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"join","inviteCode":"NOPE"}`))
	requireValidation(t, err, "inviteCode", "invite_code_not_found")

	_, err = step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"create","name":""}`))
	requireValidation(t, err, domain.KeyOrganizationName, "required")
	assert.Len(t, orgs.Created, 1)

	orgs.CreateErr = orgdomain.ErrSlugTaken
	_, err = step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"create","name":"Acme"}`))
	requireValidation(t, err, domain.KeyOrganizationSlug, "slug_taken")

	orgs.CreateErr = onboardingtest.ErrUnavailable
	_, err = step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"kind":"create","name":"Acme"}`))
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "organization.create", remote.Op)
}

func TestInviteListValidation(t *testing.T) {
	v := validator.New()
	list := InviteList{}

	list, err := list.Add(v, Invite{Email: "A@B.com"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, Invite{Email: "a@b.com", Role: InviteRoleMember}, list[0])

	next, err := list.Add(v, Invite{Email: "not-an-email"})
	requireValidation(t, err, "email", "invalid_email")
	assert.Len(t, next, 1)

	next, err = list.Add(v, Invite{Email: "a@b.com", Role: "admin"})
	requireValidation(t, err, "email", "duplicate_invite")
	assert.Len(t, next, 1)

	_, err = list.Add(v, Invite{Email: "c@d.com", Role: "owner"})
	requireValidation(t, err, "role", "invalid_role")

	assert.Empty(t, list.Remove("A@b.com"))
	assert.Len(t, list, 1)
}

func TestInvitesSurviveJSONRoundTrip(t *testing.T) {
	list := InviteList{{Email: "a@b.com", Role: "member"}, {Email: "c@d.com", Role: "admin"}}
	encoded, err := json.Marshal(domain.Data{domain.KeyTeamInvites: list.Value()})
	require.NoError(t, err)

	var decoded domain.Data
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, list, InvitesFromData(decoded))
	assert.Equal(t, list.Value(), decoded[domain.KeyTeamInvites])
}

func newTeamStep(t *testing.T, deny bool) (*TeamInvitation, *onboardingtest.Organizations, *onboardingtest.Invitations) {
	orgs := onboardingtest.NewOrganizations()
	invitations := &onboardingtest.Invitations{Fail: map[string]bool{"bounce@example.com": true}}
	return NewTeamInvitation(orgs, onboardingtest.Authorizer{Deny: deny}, invitations, zaptest.NewLogger(t)), orgs, invitations
}

func TestTeamInvitationSubmit(t *testing.T) {
	step, orgs, invitations := newTeamStep(t, false)
	ctx := context.Background()

	data := domain.Data{domain.KeyOrganizationID: "55", domain.KeyOrganizationName: "Acme"}
	patch, err := step.AddInvite(data, Invite{Email: "bob@example.com"})
	require.NoError(t, err)
	data = data.Merge(patch)
	patch, err = step.AddInvite(data, Invite{Email: "bounce@example.com", Role: "admin"})
	require.NoError(t, err)
	data = data.Merge(patch)

	outcome, err := step.Submit(ctx, StepContext{User: testUser, Data: data}, nil)
	require.NoError(t, err)
	require.Len(t, orgs.Invites, 1)
	assert.Len(t, orgs.Invites[0], 2)
	assert.Equal(t, []any{"bob@example.com"}, outcome.Patch[domain.KeyInvitesSent])
	assert.Equal(t, []any{"bounce@example.com"}, outcome.Patch[domain.KeyInvitesFailed])
	require.Len(t, invitations.Sent, 1)
	assert.Equal(t, "Acme", invitations.Sent[0].OrganizationName)
	assert.Equal(t, "Ada", invitations.Sent[0].InviterName)
}

func TestTeamInvitationEmptyListSkips(t *testing.T) {
	step, orgs, _ := newTeamStep(t, false)
	outcome, err := step.Submit(context.Background(), StepContext{User: testUser, Data: domain.Data{}}, nil)
	require.NoError(t, err)
	assert.Empty(t, orgs.Invites)
	assert.Equal(t, []any{}, outcome.Patch[domain.KeyInvitesSent])
}

func TestTeamInvitationGuards(t *testing.T) {
	ctx := context.Background()
	invites := domain.Data{domain.KeyTeamInvites: InviteList{{Email: "bob@example.com", Role: "member"}}.Value()}

	step, orgs, _ := newTeamStep(t, false)
	_, err := step.Submit(ctx, StepContext{User: testUser, Data: invites}, nil)
	requireValidation(t, err, domain.KeyOrganizationID, "organization_required")

	withOrg := invites.Merge(domain.Data{domain.KeyOrganizationID: "55"})
	_, err = step.Submit(ctx, StepContext{User: testUser, Data: withOrg}, json.RawMessage(`{"invites":[{"email":"bob@example.com"}]}`))
	requireValidation(t, err, "email", "duplicate_invite")

	orgs.InviteErr = onboardingtest.ErrUnavailable
	_, err = step.Submit(ctx, StepContext{User: testUser, Data: withOrg}, nil)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "invitation.insert", remote.Op)

	denied, deniedOrgs, _ := newTeamStep(t, true)
	_, err = denied.Submit(ctx, StepContext{User: testUser, Data: withOrg}, nil)
	assert.ErrorIs(t, err, authorization.ErrForbidden)
	assert.Empty(t, deniedOrgs.Invites)
}

func TestProfileCompletion(t *testing.T) {
	profiles := onboardingtest.NewProfiles()
	step := NewProfileCompletion(profiles)
	ctx := context.Background()

	_, err := step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{}`))
	requireValidation(t, err, "fullName", "invalid_required")

	outcome, err := step.Submit(ctx, StepContext{User: testUser}, json.RawMessage(`{"fullName":"Ada Lovelace","jobTitle":"Engineer"}`))
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", outcome.Patch[domain.KeyFullName])

	view := step.Render(testUser, domain.Data{})
	assert.Equal(t, "Ada", view.Fields[domain.KeyFullName])
}

func TestFinalConfirmationFallsBackLocally(t *testing.T) {
	profiles := onboardingtest.NewProfiles()
	step := NewFinalConfirmation(profiles, config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog()), zaptest.NewLogger(t))
	ctx := context.Background()

	outcome, err := step.Submit(ctx, StepContext{User: testUser}, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Complete)
	assert.True(t, outcome.RemoteSynced)
	assert.True(t, profiles.Completed(testUser.ID))

	profiles.SetCompleted(testUser.ID, false)
	profiles.MarkErr = onboardingtest.ErrUnavailable
	outcome, err = step.Submit(ctx, StepContext{User: testUser}, nil)
	require.NoError(t, err)
	assert.True(t, outcome.Complete)
	assert.False(t, outcome.RemoteSynced)
	assert.Equal(t, false, outcome.Patch[domain.KeyRemoteSynced])
}
