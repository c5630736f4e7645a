package router

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"job-portal-go/internal/api/handler"
	"job-portal-go/internal/config"
)

// RegisterRoutes 注册 API 路由
// 求职端接口以 X-Candidate-ID 请求头标识候选人，审核端接口要求 X-API-Key 认证
func RegisterRoutes(h *server.Hertz, cfg *config.Config, appHandler *handler.ApplicationHandler, reviewHandler *handler.ReviewHandler) {
	api := h.Group("/api/v1")

	// 求职端
	api.POST("/resumes", appHandler.HandleResumeUpload)
	api.GET("/jobs", appHandler.HandleListJobs)
	api.POST("/applications", appHandler.HandleSubmitApplication)
	api.GET("/applications", appHandler.HandleMyApplications)

	// 审核端
	review := api.Group("/review", reviewerAuth(cfg))
	review.GET("/applications", reviewHandler.HandleListApplications)
	review.PATCH("/applications/:application_id/status", reviewHandler.HandleUpdateStatus)
	review.POST("/applications/:application_id/rescore", reviewHandler.HandleRescore)
	review.GET("/applications/:application_id/resume-url", reviewHandler.HandleResumeURL)

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}

// reviewerAuth 审核端API Key认证中间件
func reviewerAuth(cfg *config.Config) app.HandlerFunc {
	validKeys := make(map[string]bool, len(cfg.Auth.ReviewerAPIKeys))
	for _, key := range cfg.Auth.ReviewerAPIKeys {
		validKeys[key] = true
	}

	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			return validKeys[key], nil
		}),
		keyauth.WithErrorHandler(func(ctx context.Context, c *app.RequestContext, err error) {
			c.JSON(consts.StatusUnauthorized, utils.H{"error": "无效的API Key"})
			c.Abort()
		}),
	)
}
