package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/logger"
)

// APIResponse 统一 API 响应格式
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// WriteJSON 统一 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Debug("Failed to encode response", "error", err.Error())
	}
}

// WriteSuccess 成功响应
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// WriteCreated 创建成功响应
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

// WriteDeleted 删除成功响应
func WriteDeleted(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "deleted",
	})
}

// WriteAPIError 按错误代码写出失败响应
func WriteAPIError(w http.ResponseWriter, apiErr *apperrors.APIError) {
	if apiErr == nil {
		apiErr = apperrors.New(apperrors.CodeServerError, "")
	}
	WriteJSON(w, apiErr.HTTPStatus(), APIResponse{
		Success: false,
		Error:   apperrors.ResolveMessage(apiErr.Code, apiErr.Message, ""),
		Code:    apiErr.Code,
		Data:    apiErr.Data,
	})
}

// WriteError 错误响应（无错误代码）
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, APIResponse{
		Success: false,
		Error:   message,
	})
}

// WriteBadRequestCode 400 错误，附带错误代码
func WriteBadRequestCode(w http.ResponseWriter, code, message string) {
	apiErr := apperrors.New(code, message)
	apiErr.Status = http.StatusBadRequest
	WriteAPIError(w, apiErr)
}

// WriteNotFoundCode 404 错误，附带错误代码
func WriteNotFoundCode(w http.ResponseWriter, code string) {
	apiErr := apperrors.New(code, "")
	apiErr.Status = http.StatusNotFound
	WriteAPIError(w, apiErr)
}

// writeServerErrorWithLog 记录底层错误，对外只返回本地化文案
func writeServerErrorWithLog(w http.ResponseWriter, code string, err error) {
	if err != nil {
		logger.Error(code, err)
	}
	apiErr := apperrors.New(code, "")
	apiErr.Status = http.StatusInternalServerError
	WriteAPIError(w, apiErr)
}

// ParseRequest 解析请求 JSON
func ParseRequest(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	contentType := r.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "json") {
		return errors.New("unsupported content type: " + contentType)
	}
	return json.NewDecoder(r.Body).Decode(v)
}

// ParseID 从 URL 参数解析 ID
func ParseID(r *http.Request) (int64, error) {
	vars := mux.Vars(r)
	id, err := strconv.ParseInt(vars["id"], 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func parseIDOrWriteBadRequest(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := ParseID(r)
	if err != nil {
		WriteBadRequestCode(w, apperrors.CodeInvalidID, "")
		return 0, false
	}
	return id, true
}

func parseRequestOrWriteBadRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := ParseRequest(r, v); err != nil {
		WriteBadRequestCode(w, apperrors.CodeInvalidRequestBody, "请求体格式错误: "+err.Error())
		return false
	}
	return true
}
