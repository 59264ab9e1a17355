package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// northboundRequest 创建/更新请求体。config 既可以是 JSON 字符串也可以是对象，
// enabled 既可以是 0/1 也可以是布尔值。
type northboundRequest struct {
	models.NorthboundConfig
	RawConfig  json.RawMessage `json:"config"`
	RawEnabled json.RawMessage `json:"enabled"`
}

func (req *northboundRequest) toRecord() (*models.NorthboundConfig, error) {
	rec := req.NorthboundConfig
	rec.Connection = nil

	configText, err := rawConfigText(req.RawConfig)
	if err != nil {
		return nil, err
	}
	rec.Config = configText

	enabled, err := rawEnabled(req.RawEnabled)
	if err != nil {
		return nil, err
	}
	rec.Enabled = enabled
	return &rec, nil
}

func rawConfigText(raw json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	if trimmed[0] == '"' {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return "", err
		}
		return text, nil
	}
	if trimmed[0] == '{' {
		return string(trimmed), nil
	}
	return "", errors.New("config must be a JSON object or string")
}

func rawEnabled(raw json.RawMessage) (int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, nil
	}
	var v interface{}
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return 0, err
	}
	on, err := cast.ToBoolE(v)
	if err != nil {
		return 0, fmt.Errorf("invalid enabled value: %s", string(trimmed))
	}
	if on {
		return 1, nil
	}
	return 0, nil
}

// normalizeNorthboundFields 清理扁平字段
func (h *Handler) normalizeNorthboundFields(rec *models.NorthboundConfig) {
	rec.Name = strings.TrimSpace(rec.Name)
	rec.Type = h.registry.Normalize(rec.Type)
	rec.ServerURL = strings.TrimSpace(rec.ServerURL)
	rec.Username = strings.TrimSpace(rec.Username)
	rec.ClientID = strings.TrimSpace(rec.ClientID)
	rec.Topic = strings.TrimSpace(rec.Topic)
	rec.AlarmTopic = strings.TrimSpace(rec.AlarmTopic)
	rec.ProductKey = strings.TrimSpace(rec.ProductKey)
	rec.DeviceKey = strings.TrimSpace(rec.DeviceKey)

	if rec.Enabled != 1 {
		rec.Enabled = 0
	}
	if rec.UploadInterval <= 0 {
		rec.UploadInterval = h.defaultUploadMs
	}
	if rec.QOS != nil && (*rec.QOS < 0 || *rec.QOS > 2) {
		qos := 0
		rec.QOS = &qos
	}
}

// prepareNorthboundRecord 校验并规范化待保存的记录。
// schema 驱动类型：合并扁平列 -> 规范化 -> 校验 -> 回写 config 与扁平列；
// 其他类型只要求 config 为合法 JSON 对象。
func (h *Handler) prepareNorthboundRecord(ctx context.Context, rec *models.NorthboundConfig) *apperrors.APIError {
	h.normalizeNorthboundFields(rec)

	if rec.Name == "" {
		return apperrors.New(apperrors.CodeNorthboundConfigInvalid, "name 为必填项")
	}
	if rec.Type == "" {
		return apperrors.New(apperrors.CodeNorthboundConfigInvalid, "type 为必填项")
	}
	if !h.registry.IsSupported(rec.Type) {
		return apperrors.New(apperrors.CodeNorthboundTypeUnsupported,
			fmt.Sprintf("不支持的北向类型: %s，可选: %s", rec.Type, strings.Join(h.registry.SupportedTypes(), ", ")))
	}

	if !h.registry.IsSchemaDriven(rec.Type) {
		parsed, err := nbconfig.ParseJSON(rec.Config)
		if err != nil {
			return apperrors.New(apperrors.CodeNorthboundConfigInvalid, "config 不是合法的 JSON 对象")
		}
		text, err := nbconfig.Config(parsed).JSON()
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeNorthboundConfigInvalid, "")
		}
		rec.Config = text
		return nil
	}

	if strings.TrimSpace(rec.Config) != "" {
		if _, err := nbconfig.ParseJSON(rec.Config); err != nil {
			return apperrors.New(apperrors.CodeNorthboundConfigInvalid, "config 不是合法的 JSON 对象")
		}
	}

	fields, err := h.schemas.Fields(ctx, rec.Type)
	if err != nil {
		if errors.Is(err, schema.ErrUnsupportedType) {
			return apperrors.New(apperrors.CodeNorthboundTypeUnsupported, "")
		}
		return apperrors.Wrap(err, apperrors.CodeServerError, "加载北向 schema 失败")
	}

	raw := nbconfig.ParseConfigFromRecord(rec, rec.Type, rec.UploadInterval, h.defaultUploadMs)
	cfg := nbconfig.Normalize(raw, fields, h.defaultUploadMs)
	if fieldErrs := nbconfig.Validate(cfg, fields); len(fieldErrs) > 0 {
		apiErr := apperrors.New(apperrors.CodeNorthboundConfigInvalid, "")
		apiErr.Data = map[string]string(fieldErrs)
		return apiErr
	}

	text, err := cfg.JSON()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeNorthboundConfigInvalid, "")
	}
	rec.Config = text
	nbconfig.FillPayloadFromConfig(rec, cfg)
	if ms := cast.ToInt(cfg[schema.KeyUploadIntervalMs]); ms > 0 {
		rec.UploadInterval = ms
	}
	return nil
}

// buildNorthboundView 合并记录与运行时快照
func (h *Handler) buildNorthboundView(rec *models.NorthboundConfig) *models.NorthboundView {
	if rec == nil {
		return nil
	}
	rec.Type = h.registry.Normalize(rec.Type)
	if addr := nbconfig.ServerAddress(rec); addr != "-" {
		rec.Connection = &models.NorthboundConnection{ServerURL: addr}
	}

	view := &models.NorthboundView{NorthboundConfig: *rec}
	status := h.statusFor(rec)
	view.Status = &status
	return view
}

func (h *Handler) statusFor(rec *models.NorthboundConfig) models.NorthboundStatus {
	status, ok := h.runtime.Status(rec.Name)
	if !ok {
		status = models.NorthboundStatus{
			Name:           rec.Name,
			Type:           rec.Type,
			BreakerState:   "closed",
			UploadInterval: rec.UploadInterval,
		}
	}
	return status
}
