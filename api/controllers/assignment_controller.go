/*
 * @module api/controllers/assignment_controller
 * @description 分配运行控制器：触发计算、查询历史运行、最新运行与生效分配
 * @architecture RESTful API架构
 * @stateFlow HTTP请求 -> 控制器 -> 分配运行服务 -> 引擎 / 数据库
 * @rules 名单为空或全部无效时返回400且不写入运行；计算接口按报价限流
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render, github.com/spf13/cast
 * @refs service/assignment/assignment_service.go
 */

package controllers

import (
	"coverage-service/service"
	"coverage-service/service/assignment"
	"coverage-service/service/coverage"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/spf13/cast"
)

// AssignmentController 分配运行控制器
type AssignmentController struct {
	assignments *assignment.Service
}

// NewAssignmentController 创建分配运行控制器实例
func NewAssignmentController() *AssignmentController {
	return &AssignmentController{assignments: service.GlobalAssignmentService}
}

// RunAssignmentRequest 触发计算请求，mode缺省为threshold
type RunAssignmentRequest struct {
	Mode string `json:"mode,omitempty" enums:"threshold,ranked" example:"threshold"`
}

// RunAssignment 触发分配计算
// @Summary 为报价计算并保存一次新的网络分配
// @Description 使用当前名单与网络目录快照计算；每次计算追加一条新的运行记录
// @Tags 网络分配
// @Accept json
// @Produce json
// @Param id path string true "报价ID"
// @Param request body RunAssignmentRequest false "计算模式"
// @Success 201 {object} APIResponse{data=models.AssignmentRun}
// @Failure 400 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 429 {object} APIResponse
// @Router /quotes/{id}/assignments [post]
func (c *AssignmentController) RunAssignment(w http.ResponseWriter, r *http.Request) {
	var req RunAssignmentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil && err != io.EOF {
		respond(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	mode, err := coverage.ParseResultKind(req.Mode)
	if err != nil {
		respond(w, r, BadRequestResponse("计算模式无效", err))
		return
	}

	run, err := c.assignments.Run(r.Context(), chi.URLParam(r, "id"), mode)
	if err != nil {
		respondError(w, r, "网络分配计算失败", err)
		return
	}
	respondCreated(w, r, "网络分配计算成功", run)
}

// ListRuns 查询运行历史
// @Summary 查询报价的分配运行历史（按时间倒序）
// @Tags 网络分配
// @Produce json
// @Param id path string true "报价ID"
// @Param limit query int false "返回条数，默认20，最大100"
// @Success 200 {object} APIResponse{data=[]models.AssignmentRun}
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/assignments [get]
func (c *AssignmentController) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 0 {
			respond(w, r, BadRequestResponse("limit参数无效", err))
			return
		}
		limit = n
	}

	runs, err := c.assignments.ListRuns(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		respondError(w, r, "获取分配运行失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取分配运行成功", runs))
}

// LatestRun 查询最新运行
// @Summary 查询报价最新的分配运行
// @Tags 网络分配
// @Produce json
// @Param id path string true "报价ID"
// @Success 200 {object} APIResponse{data=models.AssignmentRun}
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/assignments/latest [get]
func (c *AssignmentController) LatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := c.assignments.LatestRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取最新分配运行失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取最新分配运行成功", run))
}

// EffectiveAssignment 查询生效分配
// @Summary 查询报价当前生效的网络
// @Description 手工网络优先；否则取最新运行的主网络；都没有时assigned为false
// @Tags 网络分配
// @Produce json
// @Param id path string true "报价ID"
// @Success 200 {object} APIResponse{data=coverage.EffectiveAssignment}
// @Failure 404 {object} APIResponse
// @Router /quotes/{id}/effective-assignment [get]
func (c *AssignmentController) EffectiveAssignment(w http.ResponseWriter, r *http.Request) {
	eff, err := c.assignments.EffectiveAssignment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取生效分配失败", err)
		return
	}
	render.JSON(w, r, SuccessResponse("获取生效分配成功", eff))
}
