package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/gosimple/slug"
	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/launchpad/internal/clock"
	"github.com/smallbiznis/launchpad/internal/organization/domain"
	"github.com/smallbiznis/launchpad/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     domain.Repository
	genID    *snowflake.Node
	clock    clock.Clock
	validate *validator.Validate
}

func NewService(conn *gorm.DB, log *zap.Logger, repo domain.Repository, genID *snowflake.Node, clk clock.Clock) domain.Service {
	return &service{
		db:       conn,
		log:      log.Named("organization.service"),
		repo:     repo,
		genID:    genID,
		clock:    clk,
		validate: validator.New(),
	}
}

// Create inserts the organization, the owner membership and the created_by
// back-reference in one transaction.
func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	orgSlug := strings.TrimSpace(req.Slug)
	if orgSlug == "" {
		orgSlug = slug.Make(name)
	}
	if !slug.IsSlug(orgSlug) {
		return nil, domain.ErrInvalidSlug
	}

	now := s.clock.Now()
	orgID := s.genID.Generate()
	org := domain.Organization{
		ID:         orgID,
		Name:       name,
		Slug:       orgSlug,
		InviteCode: ulid.Make().String(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrganization(ctx, org); err != nil {
			return err
		}

		member := domain.OrganizationMember{
			ID:        s.genID.Generate(),
			OrgID:     orgID,
			UserID:    userID,
			Role:      domain.RoleOwner,
			Status:    domain.MemberStatusActive,
			CreatedAt: now,
		}
		if err := repo.AddMember(ctx, member); err != nil {
			return err
		}

		return repo.UpdateCreatedBy(ctx, orgID, userID)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrSlugTaken
		}
		return nil, err
	}

	s.log.Info("organization created", zap.String("organization_id", orgID.String()), zap.String("slug", orgSlug))
	return toResponse(&org), nil
}

// JoinByInviteCode adds the user as an active member. Joining twice returns
// the existing membership.
func (s *service) JoinByInviteCode(ctx context.Context, userID snowflake.ID, code string) (*domain.MembershipResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrInvalidInviteCode
	}

	org, err := s.repo.FindByInviteCode(ctx, code)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.GetMember(ctx, org.ID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &domain.MembershipResponse{Organization: *toResponse(org), Role: existing.Role}, nil
	}

	member := domain.OrganizationMember{
		ID:        s.genID.Generate(),
		OrgID:     org.ID,
		UserID:    userID,
		Role:      domain.RoleMember,
		Status:    domain.MemberStatusActive,
		CreatedAt: s.clock.Now(),
	}
	if err := s.repo.AddMember(ctx, member); err != nil {
		return nil, err
	}
	return &domain.MembershipResponse{Organization: *toResponse(org), Role: member.Role}, nil
}

func (s *service) GetByID(ctx context.Context, id string) (*domain.OrganizationResponse, error) {
	orgID, err := parseOrgID(id)
	if err != nil {
		return nil, err
	}
	org, err := s.repo.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return toResponse(org), nil
}

func (s *service) ListOrganizationsByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListResponseItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	items, err := s.repo.ListOrganizationsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := make([]domain.OrganizationListResponseItem, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.OrganizationListResponseItem{
			ID:        item.ID.String(),
			Name:      item.Name,
			Slug:      item.Slug,
			Role:      item.Role,
			CreatedAt: item.CreatedAt,
		})
	}
	return resp, nil
}

func (s *service) InviteMembers(ctx context.Context, userID snowflake.ID, orgID string, invites []domain.InviteRequest) ([]domain.InviteResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	parsedOrgID, err := parseOrgID(orgID)
	if err != nil {
		return nil, err
	}
	if len(invites) == 0 {
		return nil, domain.ErrNoInvites
	}

	member, err := s.repo.GetMember(ctx, parsedOrgID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrForbidden
	}

	now := s.clock.Now()
	rows := make([]domain.OrganizationInvite, 0, len(invites))
	for _, invite := range invites {
		addr := strings.ToLower(strings.TrimSpace(invite.Email))
		if err := s.validate.Var(addr, "required,email"); err != nil {
			return nil, domain.ErrInvalidEmail
		}
		role := domain.RoleMember
		if strings.TrimSpace(invite.Role) != "" {
			normalized, ok := domain.NormalizeRole(invite.Role)
			if !ok || normalized == domain.RoleOwner {
				return nil, domain.ErrInvalidRole
			}
			role = normalized
		}
		rows = append(rows, domain.OrganizationInvite{
			ID:        s.genID.Generate(),
			OrgID:     parsedOrgID,
			Email:     addr,
			Role:      role,
			Status:    domain.InviteStatusPending,
			InvitedBy: userID,
			CreatedAt: now,
		})
	}

	if err := s.repo.CreateInvites(ctx, rows); err != nil {
		return nil, err
	}

	resp := make([]domain.InviteResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, domain.InviteResponse{
			ID:     row.ID.String(),
			Email:  row.Email,
			Role:   row.Role,
			Status: row.Status,
		})
	}
	return resp, nil
}

func parseOrgID(raw string) (snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, domain.ErrInvalidOrganization
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidOrganization
	}
	return id, nil
}

func toResponse(org *domain.Organization) *domain.OrganizationResponse {
	return &domain.OrganizationResponse{
		ID:         org.ID.String(),
		Name:       org.Name,
		Slug:       org.Slug,
		InviteCode: org.InviteCode,
	}
}
