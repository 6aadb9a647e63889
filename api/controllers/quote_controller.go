/*
 * @module api/controllers/quote_controller
 * @description 报价控制器：报价创建与查询、标准化名单替换与读取、手工网络设置
 * @architecture RESTful API架构
 * @stateFlow HTTP请求 -> 控制器 -> 报价服务 -> 数据库
 * @rules 手工网络设置需要管理员角色；名单替换整体生效
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/quote/quote_service.go
 */

package controllers

import (
	"coverage-service/api/middleware"
	"coverage-service/service"
	"coverage-service/service/coverage"
	"coverage-service/service/models"
	"coverage-service/service/quote"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QuoteController 报价控制器
type QuoteController struct {
	quotes *quote.Service
}

// NewQuoteController 创建报价控制器实例
func NewQuoteController() *QuoteController {
	return &QuoteController{quotes: service.GlobalQuoteService}
}

// CreateQuoteRequest 创建报价请求
type CreateQuoteRequest struct {
	Name   string `json:"name" example:"Acme Corp 2027 Renewal"`
	Status string `json:"status,omitempty" example:"draft"`
}

// CensusResponse 名单响应
type CensusResponse struct {
	QuoteID string               `json:"quote_id"`
	Total   int                  `json:"total"`
	Members []coverage.MemberRow `json:"members"`
}

// ManualNetworkRequest 手工网络请求，manual_network为null或空串表示清除
type ManualNetworkRequest struct {
	ManualNetwork *string `json:"manual_network" example:"Aetna_HMO"`
}

// CreateQuote 创建报价
// @Summary 创建报价
// @Tags 报价
// @Accept json
// @Produce json
// @Param request body CreateQuoteRequest true "报价"
// @Success 201 {object} APIResponse{data=models.Quote}
// @Failure 400 {object} APIResponse
// @Router /quotes [post]
func (c *QuoteController) CreateQuote(w http.ResponseWriter, r *http.Request) {
	var req CreateQuoteRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	q := &models.Quote{Name: req.Name, Status: req.Status}
	if err := c.quotes.CreateQuote(r.Context(), q, middleware.ActorFromContext(r.Context())); err != nil {
		respondError(w, r, "创建报价失败", err)
		return
	}
	respondCreated(w, r, "创建报价成功", q)
}

// GetQuote 获取报价
// @Summary 获取报价
// @Tags 报价
// @Produce json
// @Param id path string true "报价ID"
// @Success 200 {object} APIResponse{data=models.Quote}
// @Failure 404 {object} APIResponse
// @Router /quotes/{id} [get]
func (c *QuoteController) GetQuote(w http.ResponseWriter, r *http.Request) {
	q, err := c.quotes.GetQuote(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取报价失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取报价成功", q))
}

// ReplaceCensus 替换名单
// @Summary 替换报价的标准化名单
// @Description 名单来自上游标准化步骤，每行包含行号与ZIP；行号可省略，按顺序编号
// @Tags 报价
// @Accept json
// @Produce json
// @Param id path string true "报价ID"
// @Param request body []quote.CensusRowInput true "名单"
// @Success 200 {object} APIResponse{data=CensusResponse}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/census [put]
func (c *QuoteController) ReplaceCensus(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "id")

	var rows []quote.CensusRowInput
	if err := render.DecodeJSON(r.Body, &rows); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	members, err := c.quotes.ReplaceCensus(r.Context(), quoteID, rows)
	if err != nil {
		respondError(w, r, "替换名单失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("替换名单成功", CensusResponse{QuoteID: quoteID, Total: len(members), Members: members}))
}

// GetCensus 读取名单
// @Summary 读取报价的当前名单
// @Tags 报价
// @Produce json
// @Param id path string true "报价ID"
// @Success 200 {object} APIResponse{data=CensusResponse}
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/census [get]
func (c *QuoteController) GetCensus(w http.ResponseWriter, r *http.Request) {
	quoteID := chi.URLParam(r, "id")
	if _, err := c.quotes.GetQuote(r.Context(), quoteID); err != nil {
		respondError(w, r, "获取名单失败", err)
		return
	}

	members, err := c.quotes.GetCensus(r.Context(), quoteID)
	if err != nil {
		respondError(w, r, "获取名单失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取名单成功", CensusResponse{QuoteID: quoteID, Total: len(members), Members: members}))
}

// SetManualNetwork 设置或清除手工网络
// @Summary 设置或清除报价的手工网络（管理员）
// @Description 手工网络优先于任何计算结果；传null清除
// @Tags 报价
// @Accept json
// @Produce json
// @Param id path string true "报价ID"
// @Param request body ManualNetworkRequest true "手工网络"
// @Success 200 {object} APIResponse{data=models.Quote}
// @Failure 400 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/manual-network [put]
func (c *QuoteController) SetManualNetwork(w http.ResponseWriter, r *http.Request) {
	var req ManualNetworkRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	q, err := c.quotes.SetManualNetwork(r.Context(), chi.URLParam(r, "id"), req.ManualNetwork, middleware.ActorFromContext(r.Context()))
	if err != nil {
		respondError(w, r, "设置手工网络失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("设置手工网络成功", q))
}
