package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/authorization"
	obscontext "github.com/smallbiznis/launchpad/internal/observability/context"
	onboardingdomain "github.com/smallbiznis/launchpad/internal/onboarding/domain"
)

const (
	contextUserIDKey  = "user_id"
	contextSessionKey = "session_user"
)

// WebAuthRequired resolves the session cookie or bearer token to the
// current user. The user row is re-read on every request so email
// confirmation shows up without a new login.
func (s *Server) WebAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authsvc.GetSession(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Request = c.Request.WithContext(obscontext.WithUserID(c.Request.Context(), user.ID))
		c.Set(contextUserIDKey, user.ID)
		c.Set(contextSessionKey, *user)
		c.Next()
	}
}

// RequireInteractive rejects mutating requests with 423 while the user's
// onboarding is deferred. Reads always pass.
func (s *Server) RequireInteractive() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		user, ok := sessionUser(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		flow, err := s.onboardingSvc.Flow(c.Request.Context(), user)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if !flow.AllowsInteraction() {
			AbortWithError(c, onboardingdomain.ErrReadOnly)
			return
		}
		c.Next()
	}
}

// authorizeOrgAction checks the casbin policy for the organization named by
// the :id path parameter.
func (s *Server) authorizeOrgAction(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := s.userIDFromSession(c); !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		orgID := strings.TrimSpace(c.Param("id"))
		if orgID == "" {
			AbortWithError(c, ErrNotFound)
			return
		}
		if err := s.authorizeOrg(c, orgID, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) authorizeOrg(c *gin.Context, orgID, object, action string) error {
	userID, ok := s.userIDFromSession(c)
	if !ok {
		return ErrUnauthorized
	}
	if s.authzSvc == nil {
		return ErrForbidden
	}
	return s.authzSvc.Authorize(c.Request.Context(), authorization.UserActor(userID.String()), orgID, object, action)
}

func sessionUser(c *gin.Context) (authdomain.SessionUser, bool) {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return authdomain.SessionUser{}, false
	}
	user, ok := value.(authdomain.SessionUser)
	if !ok || user.ID == "" {
		return authdomain.SessionUser{}, false
	}
	return user, true
}

func (s *Server) userIDFromSession(c *gin.Context) (snowflake.ID, bool) {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0, false
	}
	raw, ok := value.(string)
	if !ok {
		return 0, false
	}
	userID, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return userID, true
}
