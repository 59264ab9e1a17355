package handlers

import (
	"context"
	"net/http"
	"strings"

	apperrors "github.com/gonglijing/nbconsole/internal/errors"
	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// 同步网关身份时写入的嵌套配置键
const (
	identityProductKey = "productKey"
	identityDeviceKey  = "deviceKey"
)

// GetGatewayConfig 获取网关配置
func (h *Handler) GetGatewayConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.GetGatewayConfig(r.Context())
	if err != nil {
		writeServerErrorWithLog(w, apperrors.CodeGetGatewayConfigFailed, err)
		return
	}
	WriteSuccess(w, cfg)
}

// UpdateGatewayConfig 更新网关配置
func (h *Handler) UpdateGatewayConfig(w http.ResponseWriter, r *http.Request) {
	var input models.GatewayConfig
	if !parseRequestOrWriteBadRequest(w, r, &input) {
		return
	}
	input.GatewayName = strings.TrimSpace(input.GatewayName)

	if err := h.store.UpdateGatewayConfig(r.Context(), &input); err != nil {
		writeServerErrorWithLog(w, apperrors.CodeUpdateGatewayConfigFailed, err)
		return
	}
	WriteSuccess(w, input)
}

// SyncGatewayIdentityToNorthbound 将网关 product_key/device_key 同步到带身份字段的 schema 驱动北向配置
func (h *Handler) SyncGatewayIdentityToNorthbound(w http.ResponseWriter, r *http.Request) {
	productKey, deviceKey, err := h.store.GetGatewayIdentity(r.Context())
	if err != nil {
		writeServerErrorWithLog(w, apperrors.CodeGetGatewayConfigFailed, err)
		return
	}
	if productKey == "" || deviceKey == "" {
		WriteBadRequestCode(w, apperrors.CodeGatewayIdentityRequired, "")
		return
	}

	result, err := h.syncGatewayIdentity(r.Context(), productKey, deviceKey)
	if err != nil {
		writeServerErrorWithLog(w, apperrors.CodeSyncGatewayIdentityFailed, err)
		return
	}
	WriteSuccess(w, result)
}

func (h *Handler) syncGatewayIdentity(ctx context.Context, productKey, deviceKey string) (*models.GatewayIdentitySyncResult, error) {
	configs, err := h.store.GetAllNorthboundConfigs(ctx)
	if err != nil {
		return nil, err
	}

	result := &models.GatewayIdentitySyncResult{Names: []string{}}
	for _, rec := range configs {
		rec.Type = h.registry.Normalize(rec.Type)
		if !h.registry.IsSchemaDriven(rec.Type) {
			continue
		}
		fields, err := h.schemas.Fields(ctx, rec.Type)
		if err != nil {
			h.log.Warn("Skip identity sync, schema unavailable", "name", rec.Name, "error", err.Error())
			continue
		}
		if !schema.Has(fields, identityProductKey) || !schema.Has(fields, identityDeviceKey) {
			continue
		}

		raw := nbconfig.ParseConfigFromRecord(rec, rec.Type, rec.UploadInterval, h.defaultUploadMs)
		if nbconfig.ResolveString(raw, identityProductKey) == productKey &&
			nbconfig.ResolveString(raw, identityDeviceKey) == deviceKey {
			continue
		}
		raw[identityProductKey] = productKey
		raw[identityDeviceKey] = deviceKey

		cfg := nbconfig.Normalize(raw, fields, h.defaultUploadMs)
		text, err := cfg.JSON()
		if err != nil {
			return nil, err
		}
		rec.Config = text
		rec.ProductKey = productKey
		rec.DeviceKey = deviceKey
		if err := h.store.UpdateNorthboundConfig(ctx, rec); err != nil {
			return nil, err
		}
		if rec.IsEnabled() {
			if err := h.runtime.Reload(ctx, rec); err != nil {
				h.log.Warn("Northbound reload after identity sync failed", "name", rec.Name, "error", err.Error())
			}
		}
		result.Updated++
		result.Names = append(result.Names, rec.Name)
	}
	return result, nil
}
