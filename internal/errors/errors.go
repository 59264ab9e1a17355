package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// 错误代码，与网关 REST 接口约定一致
const (
	CodeBadRequest   = "E_BAD_REQUEST"
	CodeUnauthorized = "E_UNAUTHORIZED"
	CodeNotFound     = "E_NOT_FOUND"
	CodeServerError  = "E_SERVER_ERROR"

	CodeInvalidID          = "E_INVALID_ID"
	CodeInvalidRequestBody = "E_INVALID_REQUEST_BODY"

	CodeNorthboundNotFound         = "E_NORTHBOUND_NOT_FOUND"
	CodeNorthboundConfigInvalid    = "E_NORTHBOUND_CONFIG_INVALID"
	CodeNorthboundInitializeFailed = "E_NORTHBOUND_INITIALIZE_FAILED"
	CodeNorthboundReloadFailed     = "E_NORTHBOUND_RELOAD_FAILED"
	CodeListNorthboundFailed       = "E_LIST_NORTHBOUND_CONFIGS_FAILED"
	CodeCreateNorthboundFailed     = "E_CREATE_NORTHBOUND_CONFIG_FAILED"
	CodeUpdateNorthboundFailed     = "E_UPDATE_NORTHBOUND_CONFIG_FAILED"
	CodeDeleteNorthboundFailed     = "E_DELETE_NORTHBOUND_CONFIG_FAILED"
	CodeToggleNorthboundFailed     = "E_TOGGLE_NORTHBOUND_FAILED"
	CodeListNorthboundStatusFailed = "E_LIST_NORTHBOUND_STATUS_FAILED"

	CodeNorthboundNameExists      = "E_NORTHBOUND_NAME_EXISTS"
	CodeNorthboundTypeUnsupported = "E_NORTHBOUND_TYPE_UNSUPPORTED"

	CodeGetGatewayConfigFailed    = "E_GET_GATEWAY_CONFIG_FAILED"
	CodeUpdateGatewayConfigFailed = "E_UPDATE_GATEWAY_CONFIG_FAILED"
	CodeGatewayIdentityRequired   = "E_GATEWAY_IDENTITY_REQUIRED"
	CodeSyncGatewayIdentityFailed = "E_SYNC_GATEWAY_IDENTITY_FAILED"
)

// DefaultFallback 无可用消息时的兜底文案
const DefaultFallback = "操作失败"

var codeMessages = map[string]string{
	CodeBadRequest:   "请求参数错误",
	CodeUnauthorized: "登录已过期，请重新登录",
	CodeNotFound:     "请求的资源不存在",
	CodeServerError:  "服务端处理失败",

	CodeInvalidID:          "无效的 ID 参数",
	CodeInvalidRequestBody: "请求体格式错误",

	CodeNorthboundNotFound:         "北向配置不存在",
	CodeNorthboundConfigInvalid:    "北向配置参数无效",
	CodeNorthboundInitializeFailed: "北向初始化失败",
	CodeNorthboundReloadFailed:     "北向重载失败",
	CodeListNorthboundFailed:       "获取北向配置失败",
	CodeCreateNorthboundFailed:     "创建北向配置失败",
	CodeUpdateNorthboundFailed:     "更新北向配置失败",
	CodeDeleteNorthboundFailed:     "删除北向配置失败",
	CodeToggleNorthboundFailed:     "切换北向状态失败",
	CodeListNorthboundStatusFailed: "获取北向运行态失败",

	CodeNorthboundNameExists:      "北向名称已存在",
	CodeNorthboundTypeUnsupported: "不支持的北向类型",

	CodeGetGatewayConfigFailed:    "获取网关配置失败",
	CodeUpdateGatewayConfigFailed: "更新网关配置失败",
	CodeGatewayIdentityRequired:   "请先在网关配置中设置 product_key 和 device_key",
	CodeSyncGatewayIdentityFailed: "同步网关身份失败",
}

// CodeMessage returns the localized message for code.
func CodeMessage(code string) (string, bool) {
	msg, ok := codeMessages[strings.TrimSpace(code)]
	return msg, ok
}

// ResolveMessage prefers the server message, then the code table, then fallback.
func ResolveMessage(code, message, fallback string) string {
	if msg := strings.TrimSpace(message); msg != "" {
		return msg
	}
	if msg, ok := CodeMessage(code); ok {
		return msg
	}
	if fallback == "" {
		return DefaultFallback
	}
	return fallback
}

// APIError 接口错误，服务端写出、客户端解析共用
type APIError struct {
	Status  int         `json:"-"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Err     error       `json:"-"`
}

func (e *APIError) Error() string {
	msg := ResolveMessage(e.Code, e.Message, "")
	prefix := msg
	if e.Code != "" {
		prefix = fmt.Sprintf("%s: %s", e.Code, msg)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// HTTPStatus 返回对应的HTTP状态码
func (e *APIError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Code {
	case CodeBadRequest, CodeInvalidID, CodeInvalidRequestBody, CodeNorthboundConfigInvalid,
		CodeNorthboundNameExists, CodeNorthboundTypeUnsupported, CodeGatewayIdentityRequired:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotFound, CodeNorthboundNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// New 创建新错误，消息为空时使用本地化文案
func New(code, message string) *APIError {
	return &APIError{Code: code, Message: ResolveMessage(code, message, "")}
}

// Wrap 包装底层错误
func Wrap(err error, code, message string) *APIError {
	if err == nil {
		return nil
	}
	return &APIError{Code: code, Message: ResolveMessage(code, message, ""), Err: err}
}

// CodeOf returns the code of the first APIError in err's chain.
func CodeOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsCode 检查错误链中是否包含指定代码
func IsCode(err error, code string) bool {
	for current := err; current != nil; current = errors.Unwrap(current) {
		if apiErr, ok := current.(*APIError); ok && apiErr != nil && apiErr.Code == code {
			return true
		}
	}
	return false
}

// UserMessage renders err for display: APIError messages resolve through
// the code table, other errors use their text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		if fallback == "" {
			return DefaultFallback
		}
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ResolveMessage(apiErr.Code, apiErr.Message, fallback)
	}
	return ResolveMessage("", err.Error(), fallback)
}
