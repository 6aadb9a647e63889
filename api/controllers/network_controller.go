/*
 * @module api/controllers/network_controller
 * @description 网络目录控制器：网络、ZIP映射、分配设置的查询与管理
 * @architecture RESTful API架构
 * @stateFlow HTTP请求 -> 控制器 -> 网络目录服务 -> 数据库
 * @rules 写操作需要管理员角色（由路由中间件保证）
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/network/catalog_service.go
 */

package controllers

import (
	"coverage-service/api/middleware"
	"coverage-service/service"
	"coverage-service/service/coverage"
	"coverage-service/service/models"
	"coverage-service/service/network"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// NetworkController 网络目录控制器
type NetworkController struct {
	networks *network.Service
}

// NewNetworkController 创建网络目录控制器实例
func NewNetworkController() *NetworkController {
	return &NetworkController{networks: service.GlobalNetworkService}
}

// CreateNetworkRequest 添加网络请求
type CreateNetworkRequest struct {
	ID        string `json:"id" example:"Cigna_PPO"`
	Name      string `json:"name" example:"Cigna Open Access Plus PPO"`
	SortOrder int    `json:"sort_order" example:"1"`
}

// UpsertMappingsResponse 批量写入映射结果
type UpsertMappingsResponse struct {
	Upserted int `json:"upserted" example:"120"`
}

// ListNetworks 列出网络
// @Summary 列出网络目录
// @Tags 网络目录
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.Network}
// @Router /networks [get]
func (c *NetworkController) ListNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := c.networks.ListNetworks(r.Context())
	if err != nil {
		respondError(w, r, "获取网络列表失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取网络列表成功", networks))
}

// CreateNetwork 添加网络
// @Summary 添加网络（管理员）
// @Tags 网络目录
// @Accept json
// @Produce json
// @Param request body CreateNetworkRequest true "网络"
// @Success 201 {object} APIResponse{data=models.Network}
// @Failure 400 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /networks [post]
func (c *NetworkController) CreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req CreateNetworkRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	n := &models.Network{ID: req.ID, Name: req.Name, SortOrder: req.SortOrder}
	if err := c.networks.CreateNetwork(r.Context(), n, middleware.ActorFromContext(r.Context())); err != nil {
		respondError(w, r, "添加网络失败", err)
		return
	}
	respondCreated(w, r, "添加网络成功", n)
}

// DeleteNetwork 删除网络
// @Summary 删除网络及其ZIP映射（管理员）
// @Description 默认网络不可删除
// @Tags 网络目录
// @Produce json
// @Param id path string true "网络ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /networks/{id} [delete]
func (c *NetworkController) DeleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := c.networks.DeleteNetwork(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, "删除网络失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("删除网络成功", nil))
}

// ListMappings 列出ZIP映射
// @Summary 列出ZIP到网络的映射
// @Tags 网络目录
// @Produce json
// @Param network query string false "按网络过滤"
// @Success 200 {object} APIResponse{data=[]models.NetworkMapping}
// @Router /network-mappings [get]
func (c *NetworkController) ListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := c.networks.ListMappings(r.Context(), r.URL.Query().Get("network"))
	if err != nil {
		respondError(w, r, "获取网络映射失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取网络映射成功", mappings))
}

// UpsertMappings 批量写入映射
// @Summary 批量写入ZIP映射（管理员）
// @Description 整批在一个事务内生效；任一条引用未知网络则整批拒绝
// @Tags 网络目录
// @Accept json
// @Produce json
// @Param request body []coverage.NetworkMapping true "映射列表"
// @Success 200 {object} APIResponse{data=UpsertMappingsResponse}
// @Failure 400 {object} APIResponse
// @Router /network-mappings [post]
func (c *NetworkController) UpsertMappings(w http.ResponseWriter, r *http.Request) {
	var req []coverage.NetworkMapping
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	n, err := c.networks.UpsertMappings(r.Context(), req, middleware.ActorFromContext(r.Context()))
	if errors.Is(err, network.ErrNetworkNotFound) {
		// 请求体引用了未知网络，属于参数错误
		respond(w, r, BadRequestResponse("写入网络映射失败", err))
		return
	}
	if err != nil {
		respondError(w, r, "写入网络映射失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("写入网络映射成功", UpsertMappingsResponse{Upserted: n}))
}

// DeleteMapping 删除映射
// @Summary 删除ZIP映射（管理员）
// @Tags 网络目录
// @Produce json
// @Param zip path string true "ZIP"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /network-mappings/{zip} [delete]
func (c *NetworkController) DeleteMapping(w http.ResponseWriter, r *http.Request) {
	if err := c.networks.DeleteMapping(r.Context(), chi.URLParam(r, "zip")); err != nil {
		respondError(w, r, "删除网络映射失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("删除网络映射成功", nil))
}

// GetSettings 读取分配设置
// @Summary 读取分配设置
// @Tags 网络目录
// @Produce json
// @Success 200 {object} APIResponse{data=models.NetworkSettings}
// @Failure 409 {object} APIResponse
// @Router /network-settings [get]
func (c *NetworkController) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := c.networks.GetSettings(r.Context())
	if err != nil {
		respondError(w, r, "获取分配设置失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取分配设置成功", settings))
}

// UpdateSettings 写入分配设置
// @Summary 写入分配设置（管理员）
// @Description 默认网络必须在目录中，阈值必须在[0,1]之间
// @Tags 网络目录
// @Accept json
// @Produce json
// @Param request body coverage.AssignmentSettings true "分配设置"
// @Success 200 {object} APIResponse{data=models.NetworkSettings}
// @Failure 400 {object} APIResponse
// @Router /network-settings [put]
func (c *NetworkController) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req coverage.AssignmentSettings
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	settings, err := c.networks.UpdateSettings(r.Context(), req, middleware.ActorFromContext(r.Context()))
	if err != nil {
		respondError(w, r, "保存分配设置失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("保存分配设置成功", settings))
}
