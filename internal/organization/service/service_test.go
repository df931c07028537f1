package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/organization/domain"
	"github.com/smallbiznis/launchpad/internal/organization/repository"
	"github.com/smallbiznis/launchpad/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Organization{}, &domain.OrganizationMember{}, &domain.OrganizationInvite{}))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC))
	return NewService(conn, zaptest.NewLogger(t), repository.NewRepository(conn), node, clk), conn
}

func TestCreateOrganizationIsAtomic(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	owner := snowflake.ID(1001)

	org, err := svc.Create(ctx, owner, domain.CreateOrganizationRequest{Name: "Acme Rockets"})
	require.NoError(t, err)
	assert.Equal(t, "acme-rockets", org.Slug)
	assert.NotEmpty(t, org.InviteCode)

	var stored domain.Organization
	require.NoError(t, conn.First(&stored, "slug = ?", "acme-rockets").Error)
	require.NotNil(t, stored.CreatedBy)
	assert.Equal(t, owner, *stored.CreatedBy)

	var member domain.OrganizationMember
	require.NoError(t, conn.First(&member, "org_id = ? AND user_id = ?", stored.ID, owner).Error)
	assert.Equal(t, domain.RoleOwner, member.Role)
	assert.Equal(t, domain.MemberStatusActive, member.Status)

	_, err = svc.Create(ctx, snowflake.ID(1002), domain.CreateOrganizationRequest{Name: "Other", Slug: "acme-rockets"})
	assert.ErrorIs(t, err, domain.ErrSlugTaken)

	var count int64
	require.NoError(t, conn.Model(&domain.OrganizationMember{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestCreateOrganizationValidates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = svc.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "Acme", Slug: "Not A Slug"})
	assert.ErrorIs(t, err, domain.ErrInvalidSlug)

	_, err = svc.Create(ctx, 0, domain.CreateOrganizationRequest{Name: "Acme"})
	assert.ErrorIs(t, err, domain.ErrInvalidUser)
}

func TestJoinByInviteCode(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "Joinable"})
	require.NoError(t, err)

	membership, err := svc.JoinByInviteCode(ctx, 2, org.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, org.ID, membership.Organization.ID)
	assert.Equal(t, domain.RoleMember, membership.Role)

	again, err := svc.JoinByInviteCode(ctx, 2, org.InviteCode)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleMember, again.Role)

	_, err = svc.JoinByInviteCode(ctx, 2, "missing")
	assert.ErrorIs(t, err, domain.ErrInviteCodeNotFound)
	_, err = svc.JoinByInviteCode(ctx, 2, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidInviteCode)

	orgs, err := svc.ListOrganizationsByUser(ctx, 2)
	require.NoError(t, err)
	require.Len(t, orgs, 1)
	assert.Equal(t, "joinable", orgs[0].Slug)
}

func TestInviteMembersBatch(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()

	org, err := svc.Create(ctx, 1, domain.CreateOrganizationRequest{Name: "Inviter"})
	require.NoError(t, err)

	invites, err := svc.InviteMembers(ctx, 1, org.ID, []domain.InviteRequest{
		{Email: "A@example.com", Role: "admin"},
		{Email: "b@example.com"},
	})
	require.NoError(t, err)
	require.Len(t, invites, 2)
	assert.Equal(t, "a@example.com", invites[0].Email)
	assert.Equal(t, domain.RoleAdmin, invites[0].Role)
	assert.Equal(t, domain.RoleMember, invites[1].Role)

	var count int64
	require.NoError(t, conn.Model(&domain.OrganizationInvite{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)

	_, err = svc.InviteMembers(ctx, 99, org.ID, []domain.InviteRequest{{Email: "c@example.com"}})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.InviteMembers(ctx, 1, org.ID, []domain.InviteRequest{{Email: "nope"}})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = svc.InviteMembers(ctx, 1, org.ID, []domain.InviteRequest{{Email: "c@example.com", Role: "owner"}})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	require.NoError(t, conn.Model(&domain.OrganizationInvite{}).Count(&count).Error)
	assert.Equal(t, int64(2), count)
}
