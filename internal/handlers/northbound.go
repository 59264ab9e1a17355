package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// NorthboundTypeView 北向类型展示信息
type NorthboundTypeView struct {
	Type         string `json:"type"`
	Label        string `json:"label"`
	SchemaDriven bool   `json:"schema_driven"`
}

// GetNorthboundConfigs 获取所有北向配置
func (h *Handler) GetNorthboundConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.GetAllNorthboundConfigs(r.Context())
	if err != nil {
		writeServerErrorWithLog(w, apperrors.CodeListNorthboundFailed, err)
		return
	}

	views := make([]*models.NorthboundView, 0, len(configs))
	for _, cfg := range configs {
		views = append(views, h.buildNorthboundView(cfg))
	}
	WriteSuccess(w, views)
}

// GetNorthboundConfig 获取单个北向配置
func (h *Handler) GetNorthboundConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDOrWriteBadRequest(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadNorthboundOrWriteError(w, r, id)
	if !ok {
		return
	}
	WriteSuccess(w, h.buildNorthboundView(rec))
}

// GetNorthboundStatus 获取北向运行态，按名称与配置记录合并
func (h *Handler) GetNorthboundStatus(w http.ResponseWriter, r *http.Request) {
	configs, err := h.store.GetAllNorthboundConfigs(r.Context())
	if err != nil {
		writeServerErrorWithLog(w, apperrors.CodeListNorthboundStatusFailed, err)
		return
	}

	byName := make(map[string]models.NorthboundStatus, len(configs))
	for _, cfg := range configs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			continue
		}
		cfg.Type = h.registry.Normalize(cfg.Type)
		byName[name] = h.statusFor(cfg)
	}
	for _, st := range h.runtime.Statuses() {
		byName[st.Name] = st
	}

	items := make([]models.NorthboundStatus, 0, len(byName))
	for _, st := range byName {
		items = append(items, st)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	WriteSuccess(w, items)
}

// GetNorthboundSupportedTypes 获取支持的北向类型
func (h *Handler) GetNorthboundSupportedTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.SupportedTypes()
	out := make([]NorthboundTypeView, 0, len(types))
	for _, t := range types {
		out = append(out, NorthboundTypeView{
			Type:         t,
			Label:        h.registry.DisplayName(t),
			SchemaDriven: h.registry.IsSchemaDriven(t),
		})
	}
	WriteSuccess(w, out)
}

// GetNorthboundSchema 返回指定北向类型的 schema 字段
func (h *Handler) GetNorthboundSchema(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("type")
	nbType := h.registry.Normalize(raw)
	if nbType == "" {
		WriteBadRequestCode(w, apperrors.CodeBadRequest, "type 参数不能为空")
		return
	}

	fields, err := h.schemas.Fields(r.Context(), nbType)
	if err != nil {
		if errors.Is(err, schema.ErrUnsupportedType) {
			WriteBadRequestCode(w, apperrors.CodeNorthboundTypeUnsupported, "")
			return
		}
		writeServerErrorWithLog(w, apperrors.CodeServerError, err)
		return
	}

	WriteSuccess(w, map[string]interface{}{
		"type":   nbType,
		"fields": fields,
	})
}

func (h *Handler) loadNorthboundOrWriteError(w http.ResponseWriter, r *http.Request, id int64) (*models.NorthboundConfig, bool) {
	rec, err := h.store.GetNorthboundConfigByID(r.Context(), id)
	if err != nil {
		if isNotFound(err) {
			WriteNotFoundCode(w, apperrors.CodeNorthboundNotFound)
		} else {
			writeServerErrorWithLog(w, apperrors.CodeServerError, err)
		}
		return nil, false
	}
	return rec, true
}

// applyRuntime 同步运行时，失败只记录日志（连接状态从状态接口查看）
func (h *Handler) applyRuntime(ctx context.Context, rec *models.NorthboundConfig) {
	if err := h.runtime.Apply(ctx, rec); err != nil {
		h.log.Warn("Northbound runtime apply failed", "name", rec.Name, "error", err.Error())
	}
}
