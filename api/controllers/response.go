package controllers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构，status为0表示成功，否则为HTTP状态码
type APIResponse struct {
	Status int         `json:"status" example:"0"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: 0, Msg: msg, Data: data}
}

// BadRequestResponse 请求参数错误响应
func BadRequestResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 资源不存在响应
func NotFoundResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusNotFound, msg, err)
}

// InternalErrorResponse 服务器内部错误响应
func InternalErrorResponse(msg string, err error) *APIResponse {
	return errorResponse(http.StatusInternalServerError, msg, err)
}

func errorResponse(status int, msg string, err error) *APIResponse {
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &APIResponse{Status: status, Msg: msg}
}

// respond 写入HTTP状态码与响应体；成功响应使用200
func respond(w http.ResponseWriter, r *http.Request, resp *APIResponse) {
	code := resp.Status
	if code == 0 {
		code = http.StatusOK
	}
	render.Status(r, code)
	render.JSON(w, r, resp)
}

// respondCreated 201 成功响应
func respondCreated(w http.ResponseWriter, r *http.Request, msg string, data interface{}) {
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SuccessResponse(msg, data))
}
