package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/launchpad/internal/authorization"
	invitationdomain "github.com/smallbiznis/launchpad/internal/invitation/domain"
)

type sendInvitationRequest struct {
	OrganizationID   string `json:"organizationId"`
	OrganizationName string `json:"organizationName"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	InviterName      string `json:"inviterName"`
}

// SendInvitation mails a single team invite on behalf of an organization the
// caller may invite to. The stored organization name wins over the one in
// the body.
func (s *Server) SendInvitation(c *gin.Context) {
	var req sendInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		AbortWithError(c, invitationdomain.ErrInvalidOrganization)
		return
	}
	if err := s.authorizeOrg(c, orgID, authorization.ObjectInvitation, authorization.ActionInvitationSend); err != nil {
		AbortWithError(c, err)
		return
	}

	org, err := s.organizationSvc.GetByID(c.Request.Context(), orgID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	orgName := org.Name
	if strings.TrimSpace(orgName) == "" {
		orgName = req.OrganizationName
	}
	err = s.invitationSvc.Send(c.Request.Context(), invitationdomain.SendRequest{
		Email:            req.Email,
		Role:             req.Role,
		OrganizationName: orgName,
		InviterName:      req.InviterName,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "sent"})
}
