package handlers

import (
	"errors"
	"net/http"

	"github.com/gonglijing/nbconsole/internal/database"
	apperrors "github.com/gonglijing/nbconsole/internal/errors"
)

// CreateNorthboundConfig 创建北向配置
func (h *Handler) CreateNorthboundConfig(w http.ResponseWriter, r *http.Request) {
	var req northboundRequest
	if !parseRequestOrWriteBadRequest(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err != nil {
		WriteBadRequestCode(w, apperrors.CodeInvalidRequestBody, "请求体格式错误: "+err.Error())
		return
	}
	if apiErr := h.prepareNorthboundRecord(r.Context(), rec); apiErr != nil {
		WriteAPIError(w, apiErr)
		return
	}

	id, err := h.store.CreateNorthboundConfig(r.Context(), rec)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateName) {
			WriteBadRequestCode(w, apperrors.CodeNorthboundNameExists, "")
			return
		}
		writeServerErrorWithLog(w, apperrors.CodeCreateNorthboundFailed, err)
		return
	}
	rec.ID = id

	h.applyRuntime(r.Context(), rec)
	h.log.Info("Northbound config created", "id", id, "name", rec.Name, "type", rec.Type)
	WriteCreated(w, h.buildNorthboundView(rec))
}

// UpdateNorthboundConfig 更新北向配置（后写覆盖）
func (h *Handler) UpdateNorthboundConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDOrWriteBadRequest(w, r)
	if !ok {
		return
	}
	old, ok := h.loadNorthboundOrWriteError(w, r, id)
	if !ok {
		return
	}

	var req northboundRequest
	if !parseRequestOrWriteBadRequest(w, r, &req) {
		return
	}
	rec, err := req.toRecord()
	if err != nil {
		WriteBadRequestCode(w, apperrors.CodeInvalidRequestBody, "请求体格式错误: "+err.Error())
		return
	}
	if apiErr := h.prepareNorthboundRecord(r.Context(), rec); apiErr != nil {
		WriteAPIError(w, apiErr)
		return
	}

	rec.ID = id
	rec.CreatedAt = old.CreatedAt
	if err := h.store.UpdateNorthboundConfig(r.Context(), rec); err != nil {
		switch {
		case errors.Is(err, database.ErrDuplicateName):
			WriteBadRequestCode(w, apperrors.CodeNorthboundNameExists, "")
		case isNotFound(err):
			WriteNotFoundCode(w, apperrors.CodeNorthboundNotFound)
		default:
			writeServerErrorWithLog(w, apperrors.CodeUpdateNorthboundFailed, err)
		}
		return
	}

	if old.Name != rec.Name {
		h.runtime.Remove(old.Name)
	}
	h.applyRuntime(r.Context(), rec)
	h.log.Info("Northbound config updated", "id", id, "name", rec.Name)
	WriteSuccess(w, h.buildNorthboundView(rec))
}

// DeleteNorthboundConfig 删除北向配置
func (h *Handler) DeleteNorthboundConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDOrWriteBadRequest(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadNorthboundOrWriteError(w, r, id)
	if !ok {
		return
	}

	if err := h.store.DeleteNorthboundConfig(r.Context(), id); err != nil {
		if isNotFound(err) {
			WriteNotFoundCode(w, apperrors.CodeNorthboundNotFound)
			return
		}
		writeServerErrorWithLog(w, apperrors.CodeDeleteNorthboundFailed, err)
		return
	}

	h.runtime.Remove(rec.Name)
	h.log.Info("Northbound config deleted", "id", id, "name", rec.Name)
	WriteDeleted(w)
}

// ToggleNorthboundEnable 切换北向使能状态
func (h *Handler) ToggleNorthboundEnable(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDOrWriteBadRequest(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadNorthboundOrWriteError(w, r, id)
	if !ok {
		return
	}

	next := 1
	if rec.IsEnabled() {
		next = 0
	}
	if err := h.store.UpdateNorthboundEnabled(r.Context(), id, next); err != nil {
		writeServerErrorWithLog(w, apperrors.CodeToggleNorthboundFailed, err)
		return
	}

	rec.Enabled = next
	h.applyRuntime(r.Context(), rec)
	WriteSuccess(w, map[string]interface{}{
		"enabled": next,
	})
}

// ReloadNorthboundConfig 重载单个北向运行时
func (h *Handler) ReloadNorthboundConfig(w http.ResponseWriter, r *http.Request) {
	id, ok := parseIDOrWriteBadRequest(w, r)
	if !ok {
		return
	}
	rec, ok := h.loadNorthboundOrWriteError(w, r, id)
	if !ok {
		return
	}

	if err := h.runtime.Reload(r.Context(), rec); err != nil {
		WriteBadRequestCode(w, apperrors.CodeNorthboundReloadFailed, "北向重载失败: "+err.Error())
		return
	}
	WriteSuccess(w, h.buildNorthboundView(rec))
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrNotFound)
}
