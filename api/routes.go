/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 遵循RESTful API设计规范，统一错误处理和响应格式；写目录、设置、手工网络与配置需要管理员角色
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs api/controllers, api/middleware
 */

package api

import (
	"coverage-service/api/controllers"
	appmw "coverage-service/api/middleware"
	"coverage-service/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", appmw.HeaderUserName, appmw.HeaderUserRoles},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(appmw.Identity)

	// 健康检查
	healthController := controllers.NewHealthController()
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	adminOnly := appmw.RequireRole(appmw.RoleAdmin)

	// 网络目录
	networkController := controllers.NewNetworkController()
	r.Route("/networks", func(r chi.Router) {
		r.Get("/", networkController.ListNetworks)
		r.With(adminOnly).Post("/", networkController.CreateNetwork)
		r.With(adminOnly).Delete("/{id}", networkController.DeleteNetwork)
	})
	r.Route("/network-mappings", func(r chi.Router) {
		r.Get("/", networkController.ListMappings)
		r.With(adminOnly).Post("/", networkController.UpsertMappings)
		r.With(adminOnly).Delete("/{zip}", networkController.DeleteMapping)
	})
	r.Route("/network-settings", func(r chi.Router) {
		r.Get("/", networkController.GetSettings)
		r.With(adminOnly).Put("/", networkController.UpdateSettings)
	})

	// 报价与网络分配
	quoteController := controllers.NewQuoteController()
	assignmentController := controllers.NewAssignmentController()
	runLimit := appmw.QuoteRateLimit(service.GlobalRateLimiter, "id", runLimitPerMinute)
	r.Route("/quotes", func(r chi.Router) {
		r.Post("/", quoteController.CreateQuote)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", quoteController.GetQuote)
			r.Get("/census", quoteController.GetCensus)
			r.Put("/census", quoteController.ReplaceCensus)
			r.With(adminOnly).Put("/manual-network", quoteController.SetManualNetwork)

			r.With(runLimit).Post("/assignments", assignmentController.RunAssignment)
			r.Get("/assignments", assignmentController.ListRuns)
			r.Get("/assignments/latest", assignmentController.LatestRun)
			r.Get("/effective-assignment", assignmentController.EffectiveAssignment)
		})
	})

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController()
		r.Get("/", configController.GetAllConfigs)
		r.Get("/{key}", configController.GetConfig)
		r.With(adminOnly).Put("/{key}", configController.UpdateConfig)
	})
}

func runLimitPerMinute() int {
	if service.GlobalConfigService == nil {
		return 0
	}
	return service.GlobalConfigService.GetRunRateLimitPerMinute()
}
