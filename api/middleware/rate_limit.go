/*
 * @module api/middleware/rate_limit
 * @description 分配计算接口限流中间件，按报价ID做固定窗口计数
 * @architecture 中间件模式
 * @stateFlow 读取报价ID -> 读取每分钟上限 -> Redis计数 -> 放行或429
 * @rules Redis故障时放行并记录日志；limiter为nil时不限流
 * @dependencies coverage-service/service/rate_limiter, github.com/go-chi/chi/v5
 * @refs api/routes.go
 */

package middleware

import (
	"coverage-service/service/rate_limiter"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QuoteRateLimit 按URL参数param（报价ID）限流，limit每次请求时读取以支持运行时调整
func QuoteRateLimit(limiter rate_limiter.Limiter, param string, limit func() int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := "assignment_run:" + chi.URLParam(r, param)
			result, err := limiter.Allow(r.Context(), key, limit(), time.Minute)
			if err != nil {
				slog.Warn("限流检查失败，放行请求", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if result.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt, 10))
			}
			if !result.Allowed {
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]interface{}{
					"status": http.StatusTooManyRequests,
					"msg":    result.Message,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
