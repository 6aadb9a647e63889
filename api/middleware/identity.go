/*
 * @module api/middleware/identity
 * @description 网关身份头解析与角色校验中间件；身份认证由上游网关完成，本服务只读取转发的用户与角色
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @stateFlow 读取X-User-Name/X-User-Roles -> 上下文注入 -> 角色校验 -> 下一个处理器
 * @rules 缺少所需角色返回403；未携带用户名时操作人记为anonymous
 * @dependencies github.com/go-chi/render
 * @refs api/routes.go
 */

package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// ContextKey 上下文键类型
type ContextKey string

const (
	// UserInfoKey 用户信息在上下文中的键
	UserInfoKey ContextKey = "user_info"

	// HeaderUserName 网关转发的用户名
	HeaderUserName = "X-User-Name"
	// HeaderUserRoles 网关转发的角色列表，逗号分隔
	HeaderUserRoles = "X-User-Roles"

	// RoleAdmin 管理员角色
	RoleAdmin = "admin"
	// AnonymousActor 未识别的操作人
	AnonymousActor = "anonymous"
)

// UserInfo 用户信息结构
type UserInfo struct {
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole 判断是否具有角色
func (u *UserInfo) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity 解析网关转发的身份头并注入上下文
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := &UserInfo{Username: strings.TrimSpace(r.Header.Get(HeaderUserName))}
		for _, role := range strings.Split(r.Header.Get(HeaderUserRoles), ",") {
			if role = strings.ToLower(strings.TrimSpace(role)); role != "" {
				info.Roles = append(info.Roles, role)
			}
		}
		ctx := context.WithValue(r.Context(), UserInfoKey, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserInfoFromContext 从上下文中获取用户信息
func GetUserInfoFromContext(ctx context.Context) (*UserInfo, bool) {
	info, ok := ctx.Value(UserInfoKey).(*UserInfo)
	return info, ok
}

// ActorFromContext 获取操作人，用于审计字段
func ActorFromContext(ctx context.Context) string {
	if info, ok := GetUserInfoFromContext(ctx); ok && info.Username != "" {
		return info.Username
	}
	return AnonymousActor
}

// RequireRole 创建一个需要特定角色的中间件
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := GetUserInfoFromContext(r.Context())
			if !ok || !info.HasRole(role) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, map[string]interface{}{
					"status": http.StatusForbidden,
					"msg":    fmt.Sprintf("缺少所需角色: %s", role),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
