package main

import (
	"coverage-service/api"
	_ "coverage-service/docs"
	"coverage-service/service"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title 网络覆盖分配服务 API
// @version 1.0
// @description 团体保险报价的网络覆盖分配服务，根据名单邮编为报价推荐主网络
// @BasePath /
func main() {
	service.Init()
	defer service.Shutdown()

	port := service.AppConfig.Server.Port
	baseContext := service.AppConfig.Server.BaseContext

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if baseContext != "" {
		mux.Route(baseContext, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(port), mux)

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		slog.Info("收到退出信号，正在停止服务")
		if err := s.GracefulStop(); err != nil {
			slog.Error("停止服务失败", "error", err)
		}
	}()

	slog.Info("服务启动", "port", port, "base_context", baseContext)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}
}
