// Package onboardingtest provides in-memory collaborators for onboarding
// flow tests.
package onboardingtest

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	invdomain "github.com/smallbiznis/launchpad/internal/invitation/domain"
	orgdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	profiledomain "github.com/smallbiznis/launchpad/internal/profile/domain"
)

var ErrUnavailable = errors.New("collaborator unavailable")

// Auth serves users from memory.
type Auth struct {
	mu       sync.Mutex
	users    map[string]authdomain.SessionUser
	tokens   map[string]string
	Resends  []string
	GetErr   error
	ResendFn func(userID string) error
}

var _ authdomain.Service = (*Auth)(nil)

func NewAuth(users ...authdomain.SessionUser) *Auth {
	a := &Auth{users: map[string]authdomain.SessionUser{}, tokens: map[string]string{}}
	for _, u := range users {
		a.users[u.ID] = u
		a.tokens["token-"+u.ID] = u.ID
	}
	return a
}

// Confirm marks the user's email as confirmed.
func (a *Auth) Confirm(userID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u := a.users[userID]
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	u.EmailConfirmedAt = &now
	a.users[userID] = u
}

func (a *Auth) GetSession(ctx context.Context, rawToken string) (*authdomain.SessionUser, error) {
	a.mu.Lock()
	userID, ok := a.tokens[rawToken]
	a.mu.Unlock()
	if !ok {
		return nil, authdomain.ErrSessionNotFound
	}
	return a.GetUser(ctx, userID)
}

func (a *Auth) GetUser(_ context.Context, userID string) (*authdomain.SessionUser, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.GetErr != nil {
		return nil, a.GetErr
	}
	u, ok := a.users[userID]
	if !ok {
		return nil, authdomain.ErrUserNotFound
	}
	return &u, nil
}

func (a *Auth) ResendVerification(_ context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ResendFn != nil {
		if err := a.ResendFn(userID); err != nil {
			return err
		}
	}
	a.Resends = append(a.Resends, userID)
	return nil
}

func (a *Auth) ConfirmEmail(context.Context, string) (*authdomain.SessionUser, error) {
	return nil, authdomain.ErrInvalidVerification
}

func (a *Auth) CreateUser(context.Context, authdomain.CreateUserRequest) (*authdomain.User, error) {
	return nil, ErrUnavailable
}

func (a *Auth) IssueSession(context.Context, authdomain.IssueSessionRequest) (*authdomain.IssuedSession, error) {
	return nil, ErrUnavailable
}

// Profiles keeps the remote completion flag in memory.
type Profiles struct {
	mu        sync.Mutex
	completed map[string]bool
	saved     map[string]profiledomain.ProfileInput
	ReadErr   error
	MarkErr   error
	Marks     int
}

var _ profiledomain.Service = (*Profiles)(nil)

func NewProfiles() *Profiles {
	return &Profiles{completed: map[string]bool{}, saved: map[string]profiledomain.ProfileInput{}}
}

func (p *Profiles) SetCompleted(userID string, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[userID] = done
}

func (p *Profiles) Completed(userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.completed[userID]
}

func (p *Profiles) Get(_ context.Context, userID string) (*profiledomain.Profile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	input, ok := p.saved[userID]
	if !ok {
		return nil, profiledomain.ErrProfileNotFound
	}
	return &profiledomain.Profile{FullName: input.FullName, JobTitle: input.JobTitle, Phone: input.Phone, Timezone: input.Timezone, OnboardingCompleted: p.completed[userID]}, nil
}

func (p *Profiles) OnboardingCompleted(_ context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ReadErr != nil {
		return false, p.ReadErr
	}
	return p.completed[userID], nil
}

func (p *Profiles) MarkOnboardingCompleted(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Marks++
	if p.MarkErr != nil {
		return p.MarkErr
	}
	p.completed[userID] = true
	return nil
}

func (p *Profiles) ResetOnboarding(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed[userID] = false
	return nil
}

func (p *Profiles) Save(_ context.Context, userID string, input profiledomain.ProfileInput) (*profiledomain.Profile, error) {
	if input.FullName == "" {
		return nil, &profiledomain.FieldError{Field: "fullName", Tag: "required"}
	}
	p.mu.Lock()
	p.saved[userID] = input
	p.mu.Unlock()
	return &profiledomain.Profile{FullName: input.FullName, JobTitle: input.JobTitle, Phone: input.Phone, Timezone: input.Timezone}, nil
}

// Organizations records organization writes.
type Organizations struct {
	mu        sync.Mutex
	next      int64
	byCode    map[string]orgdomain.OrganizationResponse
	byID      map[string]orgdomain.OrganizationResponse
	Created   []orgdomain.CreateOrganizationRequest
	Invites   [][]orgdomain.InviteRequest
	CreateErr error
	InviteErr error
}

var _ orgdomain.Service = (*Organizations)(nil)

func NewOrganizations() *Organizations {
	return &Organizations{
		next:   1000,
		byCode: map[string]orgdomain.OrganizationResponse{},
		byID:   map[string]orgdomain.OrganizationResponse{},
	}
}

// AddInviteCode makes code joinable.
func (o *Organizations) AddInviteCode(code string, org orgdomain.OrganizationResponse) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.byCode[code] = org
}

func (o *Organizations) Create(_ context.Context, _ snowflake.ID, req orgdomain.CreateOrganizationRequest) (*orgdomain.OrganizationResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.CreateErr != nil {
		return nil, o.CreateErr
	}
	o.next++
	o.Created = append(o.Created, req)
	slug := req.Slug
	if slug == "" {
		slug = "org-" + strconv.FormatInt(o.next, 10)
	}
	org := orgdomain.OrganizationResponse{ID: strconv.FormatInt(o.next, 10), Name: req.Name, Slug: slug}
	o.byID[org.ID] = org
	return &org, nil
}

func (o *Organizations) JoinByInviteCode(_ context.Context, _ snowflake.ID, code string) (*orgdomain.MembershipResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	org, ok := o.byCode[code]
	if !ok {
		return nil, orgdomain.ErrInviteCodeNotFound
	}
	return &orgdomain.MembershipResponse{Organization: org, Role: orgdomain.RoleMember}, nil
}

func (o *Organizations) GetByID(_ context.Context, id string) (*orgdomain.OrganizationResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	org, ok := o.byID[id]
	if !ok {
		return nil, orgdomain.ErrOrganizationNotFound
	}
	return &org, nil
}

func (o *Organizations) ListOrganizationsByUser(context.Context, snowflake.ID) ([]orgdomain.OrganizationListResponseItem, error) {
	return nil, nil
}

func (o *Organizations) InviteMembers(_ context.Context, _ snowflake.ID, _ string, invites []orgdomain.InviteRequest) ([]orgdomain.InviteResponse, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.InviteErr != nil {
		return nil, o.InviteErr
	}
	o.Invites = append(o.Invites, invites)
	out := make([]orgdomain.InviteResponse, 0, len(invites))
	for _, invite := range invites {
		out = append(out, orgdomain.InviteResponse{Email: invite.Email, Role: invite.Role, Status: orgdomain.InviteStatusPending})
	}
	return out, nil
}

// Authorizer allows everything unless Deny is set.
type Authorizer struct {
	Deny bool
}

func (a Authorizer) Authorize(context.Context, string, string, string, string) error {
	if a.Deny {
		return authorization.ErrForbidden
	}
	return nil
}

// Invitations records dispatches; addresses in Fail are reported failed.
type Invitations struct {
	mu   sync.Mutex
	Sent []invdomain.SendRequest
	Fail map[string]bool
}

var _ invdomain.Service = (*Invitations)(nil)

func (i *Invitations) Send(_ context.Context, req invdomain.SendRequest) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.Fail[req.Email] {
		return ErrUnavailable
	}
	i.Sent = append(i.Sent, req)
	return nil
}

func (i *Invitations) SendAll(ctx context.Context, reqs []invdomain.SendRequest) invdomain.DispatchResult {
	result := invdomain.DispatchResult{Sent: []string{}, Failed: []string{}}
	for _, req := range reqs {
		if err := i.Send(ctx, req); err != nil {
			result.Failed = append(result.Failed, req.Email)
			continue
		}
		result.Sent = append(result.Sent, req.Email)
	}
	return result
}
