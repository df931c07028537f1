package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/launchpad/internal/auth"
	authdomain "github.com/smallbiznis/launchpad/internal/auth/domain"
	"github.com/smallbiznis/launchpad/internal/auth/session"
	"github.com/smallbiznis/launchpad/internal/authorization"
	"github.com/smallbiznis/launchpad/internal/cache"
	"github.com/smallbiznis/launchpad/internal/config"
	"github.com/smallbiznis/launchpad/internal/invitation"
	invitationdomain "github.com/smallbiznis/launchpad/internal/invitation/domain"
	"github.com/smallbiznis/launchpad/internal/observability"
	obsmiddleware "github.com/smallbiznis/launchpad/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/launchpad/internal/observability/metrics"
	obstracing "github.com/smallbiznis/launchpad/internal/observability/tracing"
	"github.com/smallbiznis/launchpad/internal/onboarding"
	"github.com/smallbiznis/launchpad/internal/organization"
	organizationdomain "github.com/smallbiznis/launchpad/internal/organization/domain"
	"github.com/smallbiznis/launchpad/internal/profile"
	"github.com/smallbiznis/launchpad/internal/providers/email"
	"github.com/smallbiznis/launchpad/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	cache.Module,
	ratelimit.Module,
	email.Module,
	authorization.Module,
	auth.Module,
	organization.Module,
	invitation.Module,
	profile.Module,
	onboarding.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authsvc         authdomain.Service
	sessions        *session.Manager
	authzSvc        authorization.Service
	organizationSvc organizationdomain.Service
	invitationSvc   invitationdomain.Service
	onboardingSvc   *onboarding.Service
	plans           *config.PlanCatalogHolder
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Authsvc         authdomain.Service
	Sessions        *session.Manager
	AuthzSvc        authorization.Service
	OrganizationSvc organizationdomain.Service
	InvitationSvc   invitationdomain.Service
	OnboardingSvc   *onboarding.Service
	Plans           *config.PlanCatalogHolder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authsvc:         p.Authsvc,
		sessions:        p.Sessions,
		authzSvc:        p.AuthzSvc,
		organizationSvc: p.OrganizationSvc,
		invitationSvc:   p.InvitationSvc,
		onboardingSvc:   p.OnboardingSvc,
		plans:           p.Plans,
	}

	svc.registerAuthRoutes()
	svc.registerOnboardingRoutes()
	svc.registerInvitationRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/auth")

	auth.GET("/me", s.WebAuthRequired(), s.Me)
	auth.POST("/logout", s.Logout)
	auth.GET("/verify-email/:token", s.ConfirmEmail)
}

func (s *Server) registerOnboardingRoutes() {
	flow := s.engine.Group("/onboarding", s.WebAuthRequired())

	flow.GET("", s.GetOnboarding)
	flow.GET("/plans", s.ListPlans)
	flow.POST("/start", s.StartOnboarding)
	flow.POST("/defer", s.DeferOnboarding)
	flow.POST("/dismiss", s.DismissOnboarding)
	flow.POST("/resume", s.ResumeOnboarding)
	flow.POST("/reset", s.ResetOnboarding)
	flow.POST("/back", s.BackOnboarding)
	flow.POST("/submit", s.SubmitOnboardingStep)

	// draft team invites, kept in the data bag until the step is submitted
	flow.POST("/invites", s.AddOnboardingInvite)
	flow.DELETE("/invites", s.RemoveOnboardingInvite)

	flow.POST("/verify-email/resend", s.ResendVerification)
	flow.POST("/verify-email/wait", s.WaitForVerification)
}

func (s *Server) registerInvitationRoutes() {
	s.engine.POST("/invitations/send", s.WebAuthRequired(), s.RequireInteractive(), s.SendInvitation)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", s.WebAuthRequired(), s.RequireInteractive())

	api.GET("/organizations", s.ListOrganizations)
	api.POST("/organizations", s.CreateOrganization)
	api.GET("/organizations/:id", s.GetOrganization)
	api.POST("/organizations/:id/invites",
		s.authorizeOrgAction(authorization.ObjectInvitation, authorization.ActionInvitationSend),
		s.InviteOrganizationMembers,
	)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
