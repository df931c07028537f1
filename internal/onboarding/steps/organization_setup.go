package steps

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/onboarding/domain"
	orgdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	"go.uber.org/zap"
)

const (
	SetupKindCreate = "create"
	SetupKindJoin   = "join"
)

// OrganizationChoice is either CreateOrganization or JoinOrganization.
type OrganizationChoice interface {
	Kind() string
	validate() error
}

type CreateOrganization struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

func (CreateOrganization) Kind() string { return SetupKindCreate }

func (c CreateOrganization) validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.NewValidationError(domain.KeyOrganizationName, "required", "Enter an organization name.")
	}
	return nil
}

type JoinOrganization struct {
	InviteCode string `json:"inviteCode"`
}

func (JoinOrganization) Kind() string { return SetupKindJoin }

func (j JoinOrganization) validate() error {
	if strings.TrimSpace(j.InviteCode) == "" {
		return domain.NewValidationError("inviteCode", "required", "Enter the invite code you received.")
	}
	return nil
}

// DecodeOrganizationChoice reads {"kind": "create"|"join", ...}. Only the
// fields of the named branch are decoded.
func DecodeOrganizationChoice(raw json.RawMessage) (OrganizationChoice, error) {
	var envelope struct {
		Kind string `json:"kind"`
	}
	if err := decodeInput(raw, &envelope); err != nil {
		return nil, err
	}

	var choice OrganizationChoice
	switch strings.ToLower(strings.TrimSpace(envelope.Kind)) {
	case SetupKindCreate:
		var create CreateOrganization
		if err := decodeInput(raw, &create); err != nil {
			return nil, err
		}
		choice = create
	case SetupKindJoin:
		var join JoinOrganization
		if err := decodeInput(raw, &join); err != nil {
			return nil, err
		}
		choice = join
	default:
		return nil, domain.NewValidationError(domain.KeySetupKind, "invalid_kind", "Choose whether to create or join an organization.")
	}

	if err := choice.validate(); err != nil {
		return nil, err
	}
	return choice, nil
}

type OrganizationSetup struct {
	orgs orgdomain.Service
	log  *zap.Logger
}

func NewOrganizationSetup(orgs orgdomain.Service, log *zap.Logger) *OrganizationSetup {
	return &OrganizationSetup{orgs: orgs, log: log}
}

func (s *OrganizationSetup) ID() domain.StepID { return domain.StepOrganizationSetup }

func (s *OrganizationSetup) Render(_ authdomain.SessionUser, data domain.Data) View {
	kind := data.String(domain.KeySetupKind)
	if kind == "" {
		kind = SetupKindCreate
	}
	return View{
		Step:  s.ID(),
		Title: "Set up your organization",
		Fields: map[string]any{
			"kind":                     kind,
			domain.KeyOrganizationName: data.String(domain.KeyOrganizationName),
			domain.KeyOrganizationSlug: data.String(domain.KeyOrganizationSlug),
		},
		Options: []string{SetupKindCreate, SetupKindJoin},
		Actions: []string{"continue", "back"},
	}
}

func (s *OrganizationSetup) Submit(ctx context.Context, sc StepContext, raw json.RawMessage) (Outcome, error) {
	choice, err := DecodeOrganizationChoice(raw)
	if err != nil {
		return Outcome{}, err
	}
	userID, err := snowflake.ParseString(sc.User.ID)
	if err != nil || userID == 0 {
		return Outcome{}, domain.ErrInvalidUser
	}

	switch c := choice.(type) {
	case CreateOrganization:
		org, err := s.orgs.Create(ctx, userID, orgdomain.CreateOrganizationRequest{Name: c.Name, Slug: c.Slug})
		if err != nil {
			return Outcome{}, s.mapError("organization.create", err)
		}
		return Outcome{Patch: domain.Data{
			domain.KeySetupKind:        SetupKindCreate,
			domain.KeyOrganizationID:   org.ID,
			domain.KeyOrganizationName: org.Name,
			domain.KeyOrganizationSlug: org.Slug,
			domain.KeyOrganizationRole: orgdomain.RoleOwner,
		}}, nil
	case JoinOrganization:
		membership, err := s.orgs.JoinByInviteCode(ctx, userID, c.InviteCode)
		if err != nil {
			return Outcome{}, s.mapError("organization.join", err)
		}
		return Outcome{Patch: domain.Data{
			domain.KeySetupKind:        SetupKindJoin,
			domain.KeyOrganizationID:   membership.Organization.ID,
			domain.KeyOrganizationName: membership.Organization.Name,
			domain.KeyOrganizationSlug: membership.Organization.Slug,
			domain.KeyOrganizationRole: membership.Role,
		}}, nil
	default:
		return Outcome{}, domain.NewValidationError(domain.KeySetupKind, "invalid_kind", "Choose whether to create or join an organization.")
	}
}

func (s *OrganizationSetup) mapError(op string, err error) error {
	switch {
	case errors.Is(err, orgdomain.ErrInvalidName):
		return domain.NewValidationError(domain.KeyOrganizationName, "invalid_name", "Enter an organization name.")
	case errors.Is(err, orgdomain.ErrInvalidSlug):
		return domain.NewValidationError(domain.KeyOrganizationSlug, "invalid_slug", "Use lowercase letters, numbers and dashes.")
	case errors.Is(err, orgdomain.ErrSlugTaken):
		return domain.NewValidationError(domain.KeyOrganizationSlug, "slug_taken", "That address is already taken.")
	case errors.Is(err, orgdomain.ErrInvalidInviteCode), errors.Is(err, orgdomain.ErrInviteCodeNotFound):
		return domain.NewValidationError("inviteCode", "invite_code_not_found", "We could not find an organization with that code.")
	}
	s.log.Warn("organization setup failed", zap.String("op", op), zap.Error(err))
	return domain.NewRemoteError(op, "We could not save your organization. Try again.", err)
}
