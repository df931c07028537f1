package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

const (
	MemberStatusActive  = "active"
	InviteStatusPending = "pending"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	JoinByInviteCode(ctx context.Context, userID snowflake.ID, code string) (*MembershipResponse, error)
	GetByID(ctx context.Context, id string) (*OrganizationResponse, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListResponseItem, error)
	// InviteMembers stores all invites in one batch insert.
	InviteMembers(ctx context.Context, userID snowflake.ID, orgID string, invites []InviteRequest) ([]InviteResponse, error)
}

type CreateOrganizationRequest struct {
	Name string
	// Slug is derived from Name when empty.
	Slug string
}

type InviteRequest struct {
	Email string
	Role  string
}

type OrganizationResponse struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	InviteCode string `json:"invite_code,omitempty"`
}

type MembershipResponse struct {
	Organization OrganizationResponse `json:"organization"`
	Role         string               `json:"role"`
}

type InviteResponse struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

type OrganizationListResponseItem struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidSlug          = errors.New("invalid_slug")
	ErrSlugTaken            = errors.New("slug_taken")
	ErrInvalidInviteCode    = errors.New("invalid_invite_code")
	ErrInviteCodeNotFound   = errors.New("invite_code_not_found")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidOrganization  = errors.New("invalid_organization")
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrInvalidEmail         = errors.New("invalid_email")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrNoInvites            = errors.New("no_invites")
	ErrForbidden            = errors.New("forbidden")
)

// NormalizeRole maps user input onto a known role.
func NormalizeRole(raw string) (string, bool) {
	switch role := strings.ToUpper(strings.TrimSpace(raw)); role {
	case RoleOwner, RoleAdmin, RoleMember:
		return role, true
	default:
		return "", false
	}
}
