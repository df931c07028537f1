package steps

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	invdomain "github.com/smallbiznis/launchpad/internal/invitation/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	orgdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	"go.uber.org/zap"
)

const (
	InviteRoleMember = "member"
	InviteRoleAdmin  = "admin"
)

type Invite struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"oneof=member admin"`
}

// InviteList is the draft list kept in the data bag until the step is
// submitted.
type InviteList []Invite

// InvitesFromData reads the draft list back out of a (possibly reloaded)
// data bag.
func InvitesFromData(data domain.Data) InviteList {
	raw, ok := data[domain.KeyTeamInvites]
	if !ok || raw == nil {
		return InviteList{}
	}
	encoded, err := json.Marshal(raw)
	if err != nil {
		return InviteList{}
	}
	var list InviteList
	if err := json.Unmarshal(encoded, &list); err != nil {
		return InviteList{}
	}
	return list
}

// Add validates invite and returns a new list containing it. The receiver
// is never modified.
func (l InviteList) Add(v *validator.Validate, invite Invite) (InviteList, error) {
	invite.Email = strings.ToLower(strings.TrimSpace(invite.Email))
	invite.Role = strings.ToLower(strings.TrimSpace(invite.Role))
	if invite.Role == "" {
		invite.Role = InviteRoleMember
	}

	if err := v.Var(invite.Email, "required,email"); err != nil {
		return l, domain.NewValidationError("email", "invalid_email", "Enter a valid email address.")
	}
	if err := v.Struct(invite); err != nil {
		return l, domain.NewValidationError("role", "invalid_role", "Role must be member or admin.")
	}
	for _, existing := range l {
		if existing.Email == invite.Email {
			return l, domain.NewValidationError("email", "duplicate_invite", "That address is already on the list.")
		}
	}

	out := make(InviteList, 0, len(l)+1)
	out = append(out, l...)
	return append(out, invite), nil
}

func (l InviteList) Remove(email string) InviteList {
	email = strings.ToLower(strings.TrimSpace(email))
	out := make(InviteList, 0, len(l))
	for _, invite := range l {
		if invite.Email != email {
			out = append(out, invite)
		}
	}
	return out
}

// Value encodes the list the way it reads back from JSON storage.
func (l InviteList) Value() []any {
	out := make([]any, 0, len(l))
	for _, invite := range l {
		out = append(out, map[string]any{"email": invite.Email, "role": invite.Role})
	}
	return out
}

// InviteEditor edits the draft list without remote calls.
type InviteEditor interface {
	AddInvite(data domain.Data, invite Invite) (domain.Data, error)
	RemoveInvite(data domain.Data, email string) domain.Data
}

type teamInput struct {
	Invites []Invite `json:"invites"`
}

type TeamInvitation struct {
	orgs        orgdomain.Service
	authz       authorization.Service
	invitations invdomain.Service
	log         *zap.Logger
	validate    *validator.Validate
}

var _ InviteEditor = (*TeamInvitation)(nil)

func NewTeamInvitation(orgs orgdomain.Service, authz authorization.Service, invitations invdomain.Service, log *zap.Logger) *TeamInvitation {
	return &TeamInvitation{
		orgs:        orgs,
		authz:       authz,
		invitations: invitations,
		log:         log,
		validate:    validator.New(),
	}
}

func (s *TeamInvitation) ID() domain.StepID { return domain.StepTeamInvitation }

func (s *TeamInvitation) Render(_ authdomain.SessionUser, data domain.Data) View {
	return View{
		Step:  s.ID(),
		Title: "Invite your team",
		Fields: map[string]any{
			domain.KeyTeamInvites:      InvitesFromData(data),
			domain.KeyOrganizationName: data.String(domain.KeyOrganizationName),
		},
		Options: []string{InviteRoleMember, InviteRoleAdmin},
		Actions: []string{"add", "remove", "continue", "back"},
	}
}

func (s *TeamInvitation) AddInvite(data domain.Data, invite Invite) (domain.Data, error) {
	list, err := InvitesFromData(data).Add(s.validate, invite)
	if err != nil {
		return nil, err
	}
	return domain.Data{domain.KeyTeamInvites: list.Value()}, nil
}

func (s *TeamInvitation) RemoveInvite(data domain.Data, email string) domain.Data {
	return domain.Data{domain.KeyTeamInvites: InvitesFromData(data).Remove(email).Value()}
}

// Submit stores every drafted invite in one insert, then mails each one.
// Mail failures are reported in the patch but do not fail the step.
func (s *TeamInvitation) Submit(ctx context.Context, sc StepContext, raw json.RawMessage) (Outcome, error) {
	var input teamInput
	if err := decodeInput(raw, &input); err != nil {
		return Outcome{}, err
	}
	list := InvitesFromData(sc.Data)
	for _, invite := range input.Invites {
		next, err := list.Add(s.validate, invite)
		if err != nil {
			return Outcome{}, err
		}
		list = next
	}

	if len(list) == 0 {
		return Outcome{Patch: domain.Data{
			domain.KeyTeamInvites: InviteList{}.Value(),
			domain.KeyInvitesSent: []any{},
		}}, nil
	}

	orgID := sc.Data.String(domain.KeyOrganizationID)
	if orgID == "" {
		return Outcome{}, domain.NewValidationError(domain.KeyOrganizationID, "organization_required", "Set up your organization before inviting teammates.")
	}
	userID, err := snowflake.ParseString(sc.User.ID)
	if err != nil || userID == 0 {
		return Outcome{}, domain.ErrInvalidUser
	}

	if err := s.authz.Authorize(ctx, authorization.UserActor(sc.User.ID), orgID, authorization.ObjectInvitation, authorization.ActionInvitationSend); err != nil {
		if errors.Is(err, authorization.ErrForbidden) {
			return Outcome{}, err
		}
		return Outcome{}, domain.NewRemoteError("invitation.authorize", "We could not check your permissions. Try again.", err)
	}

	requests := make([]orgdomain.InviteRequest, 0, len(list))
	for _, invite := range list {
		requests = append(requests, orgdomain.InviteRequest{Email: invite.Email, Role: invite.Role})
	}
	if _, err := s.orgs.InviteMembers(ctx, userID, orgID, requests); err != nil {
		s.log.Warn("invite insert failed", zap.Int("count", len(requests)), zap.Error(err))
		return Outcome{}, domain.NewRemoteError("invitation.insert", "We could not save your invitations. Try again.", err)
	}

	inviter := strings.TrimSpace(sc.User.DisplayName)
	if inviter == "" {
		inviter = sc.User.Email
	}
	dispatch := make([]invdomain.SendRequest, 0, len(list))
	for _, invite := range list {
		dispatch = append(dispatch, invdomain.SendRequest{
			Email:            invite.Email,
			Role:             invite.Role,
			OrganizationName: sc.Data.String(domain.KeyOrganizationName),
			InviterName:      inviter,
		})
	}
	result := s.invitations.SendAll(ctx, dispatch)

	return Outcome{Patch: domain.Data{
		domain.KeyTeamInvites:   list.Value(),
		domain.KeyInvitesSent:   stringsValue(result.Sent),
		domain.KeyInvitesFailed: stringsValue(result.Failed),
	}}, nil
}

func stringsValue(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, v)
	}
	return out
}
