// Package client 网关北向 REST 接口客户端（CLI 与编辑会话共用）。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/logger"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// RequestIDHeader 每个请求附带的追踪头
const RequestIDHeader = "X-Request-ID"

// Options 客户端参数
type Options struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// Client 北向配置接口客户端
type Client struct {
	http *resty.Client
	log  *logger.Logger
}

// TypeInfo 北向类型描述
type TypeInfo struct {
	Type         string `json:"type"`
	Label        string `json:"label"`
	SchemaDriven bool   `json:"schema_driven"`
}

// New 创建客户端
func New(opts Options) *Client {
	var rc *resty.Client
	if opts.HTTPClient != nil {
		rc = resty.NewWithClient(opts.HTTPClient)
	} else {
		rc = resty.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNop()
	}

	rc.SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")
	if token := strings.TrimSpace(opts.Token); token != "" {
		rc.SetAuthToken(token)
	}

	return &Client{http: rc, log: opts.Logger.WithModule("client")}
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Code    string          `json:"code"`
}

// UnmarshalJSON 非对象响应（如裸数组）不视为包装，交给原始响应体处理
func (e *envelope) UnmarshalJSON(b []byte) error {
	type plain envelope
	if t := bytes.TrimSpace(b); len(t) == 0 || t[0] != '{' {
		return nil
	}
	return json.Unmarshal(b, (*plain)(e))
}

// do 发送请求并拆开 {success, data, error, message, code} 包装；
// 包装由 resty 按 Content-Type 绑定，失败包装或非 2xx 状态统一转换为 *apperrors.APIError。
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	requestID := uuid.NewString()
	env := &envelope{}
	req := c.http.R().
		SetContext(ctx).
		SetHeader(RequestIDHeader, requestID).
		SetResult(env).
		SetError(env)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug("API request", "method", method, "path", path, "status", resp.StatusCode(), "request_id", requestID)

	return decodeResponse(resp.StatusCode(), env, resp.Body(), out)
}

// decodeResponse env 为 resty 绑定的包装；Success 为空说明对端返回的不是包装
// （或不是 JSON），此时按原始响应体处理。
func decodeResponse(status int, env *envelope, raw []byte, out interface{}) error {
	if status == http.StatusUnauthorized {
		return &apperrors.APIError{
			Status:  status,
			Code:    apperrors.CodeUnauthorized,
			Message: apperrors.ResolveMessage(apperrors.CodeUnauthorized, "", ""),
		}
	}

	ok := status >= 200 && status < 300
	if env == nil || env.Success == nil {
		raw = bytes.TrimSpace(raw)
		if !ok {
			return httpStatusError(status)
		}
		if len(raw) == 0 {
			return nil
		}
		return unmarshalData(raw, out)
	}

	if !*env.Success || !ok {
		message := env.Error
		if strings.TrimSpace(message) == "" {
			message = env.Message
		}
		apiErr := &apperrors.APIError{
			Status:  status,
			Code:    env.Code,
			Message: apperrors.ResolveMessage(env.Code, message, http.StatusText(status)),
		}
		if len(env.Data) > 0 && !bytes.Equal(env.Data, []byte("null")) {
			var data interface{}
			if json.Unmarshal(env.Data, &data) == nil {
				apiErr.Data = data
			}
		}
		return apiErr
	}
	return unmarshalData(env.Data, out)
}

func unmarshalData(raw json.RawMessage, out interface{}) error {
	if out == nil || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

func httpStatusError(status int) *apperrors.APIError {
	code := apperrors.CodeServerError
	switch {
	case status == http.StatusNotFound:
		code = apperrors.CodeNotFound
	case status >= 400 && status < 500:
		code = apperrors.CodeBadRequest
	}
	return &apperrors.APIError{
		Status:  status,
		Code:    code,
		Message: fmt.Sprintf("%d %s", status, http.StatusText(status)),
	}
}

func northboundPath(id int64, suffix string) string {
	return "/api/northbound/" + strconv.FormatInt(id, 10) + suffix
}

// ListConfigs 获取北向配置列表
func (c *Client) ListConfigs(ctx context.Context) ([]*models.NorthboundView, error) {
	var out []*models.NorthboundView
	if err := c.do(ctx, http.MethodGet, "/api/northbound", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []*models.NorthboundView{}
	}
	return out, nil
}

// GetConfig 获取单个北向配置
func (c *Client) GetConfig(ctx context.Context, id int64) (*models.NorthboundView, error) {
	var out models.NorthboundView
	if err := c.do(ctx, http.MethodGet, northboundPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListStatus 获取北向运行态
func (c *Client) ListStatus(ctx context.Context) ([]models.NorthboundStatus, error) {
	var out []models.NorthboundStatus
	if err := c.do(ctx, http.MethodGet, "/api/northbound/status", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.NorthboundStatus{}
	}
	return out, nil
}

// Types 获取支持的北向类型
func (c *Client) Types(ctx context.Context) ([]TypeInfo, error) {
	var out []TypeInfo
	if err := c.do(ctx, http.MethodGet, "/api/northbound/types", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Schema 获取北向类型的 schema 字段
func (c *Client) Schema(ctx context.Context, nbType string) ([]schema.Field, error) {
	var out struct {
		Type   string         `json:"type"`
		Fields []schema.Field `json:"fields"`
	}
	path := "/api/northbound/schema?type=" + url.QueryEscape(nbType)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Fields, nil
}

// Fields 实现 schema.Provider，便于编辑会话直接经由接口加载 schema
func (c *Client) Fields(ctx context.Context, nbType string) ([]schema.Field, error) {
	fields, err := c.Schema(ctx, nbType)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeNorthboundTypeUnsupported) {
			return nil, fmt.Errorf("%w: %s", schema.ErrUnsupportedType, nbType)
		}
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: %s", schema.ErrEmptySchema, nbType)
	}
	return fields, nil
}

// Create 创建北向配置
func (c *Client) Create(ctx context.Context, rec *models.NorthboundConfig) (*models.NorthboundView, error) {
	var out models.NorthboundView
	if err := c.do(ctx, http.MethodPost, "/api/northbound", rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Update 更新北向配置
func (c *Client) Update(ctx context.Context, id int64, rec *models.NorthboundConfig) (*models.NorthboundView, error) {
	var out models.NorthboundView
	if err := c.do(ctx, http.MethodPut, northboundPath(id, ""), rec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete 删除北向配置
func (c *Client) Delete(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, northboundPath(id, ""), nil, nil)
}

// Toggle 切换使能，返回切换后的 enabled
func (c *Client) Toggle(ctx context.Context, id int64) (int, error) {
	var out struct {
		Enabled int `json:"enabled"`
	}
	if err := c.do(ctx, http.MethodPost, northboundPath(id, "/toggle"), struct{}{}, &out); err != nil {
		return 0, err
	}
	return out.Enabled, nil
}

// Reload 重载北向运行时
func (c *Client) Reload(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, northboundPath(id, "/reload"), nil, nil)
}

// SyncGatewayIdentity 将网关身份同步到北向配置
func (c *Client) SyncGatewayIdentity(ctx context.Context) (*models.GatewayIdentitySyncResult, error) {
	out := &models.GatewayIdentitySyncResult{}
	if err := c.do(ctx, http.MethodPost, "/api/gateway/northbound/sync-identity", nil, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetGatewayConfig 获取网关配置
func (c *Client) GetGatewayConfig(ctx context.Context) (*models.GatewayConfig, error) {
	var out models.GatewayConfig
	if err := c.do(ctx, http.MethodGet, "/api/gateway/config", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateGatewayConfig 更新网关配置
func (c *Client) UpdateGatewayConfig(ctx context.Context, cfg *models.GatewayConfig) (*models.GatewayConfig, error) {
	var out models.GatewayConfig
	if err := c.do(ctx, http.MethodPut, "/api/gateway/config", cfg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
