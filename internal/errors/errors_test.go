// =============================================================================
// 错误模块单元测试
// =============================================================================
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestResolveMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		fallback string
		want     string
	}{
		{"server message wins", CodeNorthboundNotFound, "  record 3 missing ", "x", "record 3 missing"},
		{"code table", CodeNorthboundConfigInvalid, "", "x", "北向配置参数无效"},
		{"code with spaces", " E_INVALID_ID ", "", "x", "无效的 ID 参数"},
		{"fallback", "E_UNKNOWN", "", "自定义", "自定义"},
		{"default fallback", "", "", "", DefaultFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveMessage(tt.code, tt.message, tt.fallback); got != tt.want {
				t.Errorf("ResolveMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Code: CodeNorthboundNotFound}
	if got := err.Error(); got != "E_NORTHBOUND_NOT_FOUND: 北向配置不存在" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(errors.New("disk full"), CodeCreateNorthboundFailed, "")
	if got := wrapped.Error(); got != "E_CREATE_NORTHBOUND_CONFIG_FAILED: 创建北向配置失败: disk full" {
		t.Errorf("Error() = %q", got)
	}

	if Wrap(nil, CodeServerError, "") != nil {
		t.Error("Wrap(nil) should be nil")
	}
}

func TestAPIError_HTTPStatus(t *testing.T) {
	tests := []struct {
		err  *APIError
		want int
	}{
		{New(CodeNorthboundConfigInvalid, ""), http.StatusBadRequest},
		{New(CodeInvalidID, ""), http.StatusBadRequest},
		{New(CodeUnauthorized, ""), http.StatusUnauthorized},
		{New(CodeNorthboundNotFound, ""), http.StatusNotFound},
		{New(CodeListNorthboundFailed, ""), http.StatusInternalServerError},
		{&APIError{Status: http.StatusConflict, Code: CodeBadRequest}, http.StatusConflict},
	}

	for _, tt := range tests {
		if got := tt.err.HTTPStatus(); got != tt.want {
			t.Errorf("%s HTTPStatus() = %d, want %d", tt.err.Code, got, tt.want)
		}
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	base := New(CodeNorthboundNotFound, "")
	err := fmt.Errorf("load: %w", base)

	if !IsCode(err, CodeNorthboundNotFound) {
		t.Error("IsCode should find wrapped code")
	}
	if IsCode(err, CodeServerError) {
		t.Error("IsCode matched wrong code")
	}
	if CodeOf(err) != CodeNorthboundNotFound {
		t.Errorf("CodeOf() = %q", CodeOf(err))
	}
	if CodeOf(errors.New("plain")) != "" {
		t.Error("CodeOf(plain) should be empty")
	}
}

func TestUserMessage(t *testing.T) {
	if got := UserMessage(nil, ""); got != DefaultFallback {
		t.Errorf("UserMessage(nil) = %q", got)
	}
	if got := UserMessage(&APIError{Code: CodeToggleNorthboundFailed}, "x"); got != "切换北向状态失败" {
		t.Errorf("UserMessage(code) = %q", got)
	}
	if got := UserMessage(fmt.Errorf("wrap: %w", &APIError{Code: "E_X", Message: "服务端说明"}), "x"); got != "服务端说明" {
		t.Errorf("UserMessage(message) = %q", got)
	}
	if got := UserMessage(errors.New("dial tcp: refused"), "x"); got != "dial tcp: refused" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}
