package controllers

import (
	"coverage-service/service/assignment"
	"coverage-service/service/coverage"
	"coverage-service/service/network"
	"coverage-service/service/quote"
	"errors"
	"log/slog"
	"net/http"

	"gorm.io/gorm"
)

// statusForError 将业务错误映射为HTTP状态码
func statusForError(err error) int {
	switch {
	case errors.Is(err, coverage.ErrInsufficientData),
		errors.Is(err, coverage.ErrMissingDefaultNetwork),
		errors.Is(err, coverage.ErrUnknownDefaultNetwork),
		errors.Is(err, coverage.ErrInvalidThreshold),
		errors.Is(err, network.ErrInvalidMapping),
		errors.Is(err, quote.ErrInvalidQuote),
		errors.Is(err, quote.ErrInvalidCensus),
		errors.Is(err, quote.ErrUnknownNetwork):
		return http.StatusBadRequest
	case errors.Is(err, network.ErrNetworkExists),
		errors.Is(err, network.ErrNetworkIsDefault),
		errors.Is(err, network.ErrSettingsNotConfigured),
		errors.Is(err, network.ErrSettingsInvalid):
		return http.StatusConflict
	case errors.Is(err, quote.ErrQuoteNotFound),
		errors.Is(err, network.ErrNetworkNotFound),
		errors.Is(err, network.ErrMappingNotFound),
		errors.Is(err, assignment.ErrNoRuns),
		errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按错误类型写入错误响应；5xx记录日志且不向调用方暴露底层错误
func respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		slog.Error(msg, "path", r.URL.Path, "error", err)
		respond(w, r, InternalErrorResponse(msg, nil))
		return
	}
	respond(w, r, errorResponse(status, msg, err))
}
