package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OrganizationListItem struct {
	ID        snowflake.ID
	Name      string
	Slug      string
	Role      string
	CreatedAt time.Time
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrganization(ctx context.Context, org Organization) error
	UpdateCreatedBy(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) error
	GetByID(ctx context.Context, orgID snowflake.ID) (*Organization, error)
	FindByInviteCode(ctx context.Context, code string) (*Organization, error)
	AddMember(ctx context.Context, member OrganizationMember) error
	GetMember(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (*OrganizationMember, error)
	ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	CreateInvites(ctx context.Context, invites []OrganizationInvite) error
}
