package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/api/handler"
	"github.com/qs3c/careerlane_server/internal/api/middleware"
	"github.com/qs3c/careerlane_server/internal/model"
)

type Router struct {
	healthHandler    *handler.HealthHandler
	jobHandler       *handler.JobHandler
	userHandler      *handler.UserHandler
	chatHandler      *handler.ChatHandler
	websocketHandler *handler.WebSocketHandler
	adminHandler     *handler.AdminHandler
	marketHandler    *handler.MarketHandler
	cfg              *config.Config
	log              *zap.Logger
}

func NewRouter(
	healthHandler *handler.HealthHandler,
	jobHandler *handler.JobHandler,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	websocketHandler *handler.WebSocketHandler,
	adminHandler *handler.AdminHandler,
	marketHandler *handler.MarketHandler,
	cfg *config.Config,
	log *zap.Logger,
) *Router {
	return &Router{
		healthHandler:    healthHandler,
		jobHandler:       jobHandler,
		userHandler:      userHandler,
		chatHandler:      chatHandler,
		websocketHandler: websocketHandler,
		adminHandler:     adminHandler,
		marketHandler:    marketHandler,
		cfg:              cfg,
		log:              log,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(middleware.Recovery(r.log))
	engine.Use(middleware.RequestLogger(r.log))
	engine.Use(middleware.CORS(r.cfg.CORS))

	secret := r.cfg.JWT.Secret
	aiLimit := middleware.NewRateLimiter(r.cfg.Server.AIRequestsPerMinute, r.cfg.Server.AIBurst)

	api := engine.Group("/api/v1")
	{
		api.GET("/health", r.healthHandler.Health)

		// 公开接口 - 职位
		jobsPublic := api.Group("/jobs")
		jobsPublic.Use(middleware.OptionalAuth(secret))
		{
			jobsPublic.GET("", r.jobHandler.Feed)
			// processing 状态的详情需要识别发布者
			jobsPublic.GET("/:id", r.jobHandler.Detail)
		}

		// WebSocket 在 handler 内部验证 query 中的 token
		api.GET("/chat/sessions/:id/ws", r.websocketHandler.Handle)

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(secret))
		{
			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/resume", aiLimit.Middleware(), r.userHandler.UpdateResume)
				user.GET("/resume/url", r.userHandler.ResumeURL)
			}

			// 职位发布
			provider := authenticated.Group("/jobs")
			provider.Use(middleware.RequireRole(model.RoleProvider, model.RoleAdmin))
			{
				provider.POST("", aiLimit.Middleware(), r.jobHandler.Create)
				provider.GET("/mine", r.jobHandler.Mine)
			}

			// 求职者
			seeker := authenticated.Group("")
			seeker.Use(middleware.RequireRole(model.RoleSeeker))
			{
				seeker.GET("/jobs/:id/match", r.jobHandler.Match)
				seeker.POST("/chat/sessions", r.chatHandler.Create)
				seeker.GET("/chat/sessions", r.chatHandler.List)
			}

			// 市场统计
			authenticated.GET("/analytics/market", r.marketHandler.Market)

			// 会话归属在 handler 内部校验
			authenticated.GET("/chat/sessions/:id/history", r.chatHandler.History)

			// 管理端
			admin := authenticated.Group("/admin")
			admin.Use(middleware.RequireRole(model.RoleAdmin))
			{
				admin.GET("/chat/sessions", r.adminHandler.ListSessions)
				admin.GET("/chat/sessions/:id/log", r.adminHandler.SessionLog)
				admin.POST("/chat/sessions/:id/takeover", r.adminHandler.Takeover)
				admin.POST("/chat/sessions/:id/handback", r.adminHandler.HandBack)
				admin.POST("/chat/sessions/:id/close", r.adminHandler.Close)
				admin.POST("/chat/sessions/:id/messages", r.adminHandler.SendMessage)

				admin.POST("/ingest", r.adminHandler.Ingest)
				admin.GET("/ingest/runs", r.adminHandler.Runs)
				admin.POST("/ingest/:source", r.adminHandler.IngestSource)

				admin.POST("/jobs/reenrich", r.adminHandler.Reenrich)
				admin.GET("/jobs/stats", r.adminHandler.JobStats)
			}
		}
	}

	return engine
}
