/*
 * @module api/controllers/config_controller
 * @description 配置管理控制器，提供运行时系统配置（保留天数、保留条数、限流）的HTTP接口
 * @architecture RESTful API架构
 * @stateFlow HTTP请求 -> 控制器 -> 配置服务 -> 数据库
 * @rules 只允许修改已定义的配置键；修改需要管理员角色
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/config
 */

package controllers

import (
	"coverage-service/service"
	"coverage-service/service/config"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ConfigController 配置控制器
type ConfigController struct {
	configs *config.ConfigService
}

// NewConfigController 创建配置控制器实例
func NewConfigController() *ConfigController {
	return &ConfigController{configs: service.GlobalConfigService}
}

// ConfigValue 配置键值
type ConfigValue struct {
	Key   string `json:"key" example:"assignment_run_retention_days"`
	Value string `json:"value" example:"180"`
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Value string `json:"value" example:"90"`
}

// GetAllConfigs 获取所有配置
// @Summary 获取所有系统配置
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.SystemConfigItem}
// @Router /config [get]
func (c *ConfigController) GetAllConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.configs.GetAllSystemConfigs()
	if err != nil {
		respondError(w, r, "获取配置失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取配置成功", configs))
}

// GetConfig 获取单个配置
// @Summary 获取单个配置
// @Tags 系统配置
// @Produce json
// @Param key path string true "配置键"
// @Success 200 {object} APIResponse{data=ConfigValue}
// @Failure 404 {object} APIResponse
// @Router /config/{key} [get]
func (c *ConfigController) GetConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	value, err := c.configs.GetSystemConfig(key)
	if err != nil {
		respond(w, r, NotFoundResponse("配置项不存在", nil))
		return
	}
	render.JSON(w, r, SuccessResponse("获取配置成功", ConfigValue{Key: key, Value: value}))
}

// UpdateConfig 更新配置
// @Summary 更新配置（管理员）
// @Description 所有配置值均为非负整数
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param key path string true "配置键"
// @Param request body UpdateConfigRequest true "更新配置请求"
// @Success 200 {object} APIResponse{data=ConfigValue}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /config/{key} [put]
func (c *ConfigController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	err := c.configs.UpdateKnownConfig(key, req.Value)
	switch {
	case errors.Is(err, config.ErrUnknownConfigKey):
		respond(w, r, NotFoundResponse("配置项不存在", err))
		return
	case errors.Is(err, config.ErrInvalidConfigValue):
		respond(w, r, BadRequestResponse("更新配置失败", err))
		return
	case err != nil:
		respondError(w, r, "更新配置失败", err)
		return
	}

	value, _ := c.configs.GetSystemConfig(key)
	render.JSON(w, r, SuccessResponse("更新配置成功", ConfigValue{Key: key, Value: value}))
}
