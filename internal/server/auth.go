package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Me returns the signed-in user together with the onboarding gate, so a
// client can decide on the first render whether to show the banner.
func (s *Server) Me(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{
		"user":       user,
		"onboarding": flow.View(),
	})
}

func (s *Server) Logout(c *gin.Context) {
	s.sessions.Clear(c)
	c.Status(http.StatusNoContent)
}

// ConfirmEmail consumes a verification link. The cached gate is dropped so
// the verify-email step sees the new address state on the next request.
func (s *Server) ConfirmEmail(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.authsvc.ConfirmEmail(c.Request.Context(), token)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.onboardingSvc.Invalidate(user.ID)
	s.log.Info("email confirmed", zap.String("user_id", user.ID))
	c.JSON(http.StatusOK, gin.H{"user": user})
}
