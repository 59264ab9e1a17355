package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/gonglijing/nbconsole/internal/models"
)

// DefaultGatewayName 网关默认名称
const DefaultGatewayName = "HuShu智能网关"

// GetGatewayConfig 获取网关配置
func (s *Store) GetGatewayConfig(ctx context.Context) (*models.GatewayConfig, error) {
	cfg := &models.GatewayConfig{}
	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT product_key, device_key, gateway_name, updated_at FROM gateway_config WHERE id = 1`,
	).Scan(&cfg.ProductKey, &cfg.DeviceKey, &cfg.GatewayName, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if updatedAt.Valid {
		cfg.UpdatedAt = updatedAt.Time
	}
	if strings.TrimSpace(cfg.GatewayName) == "" {
		cfg.GatewayName = DefaultGatewayName
	}
	return cfg, nil
}

// UpdateGatewayConfig 更新网关配置
func (s *Store) UpdateGatewayConfig(ctx context.Context, cfg *models.GatewayConfig) error {
	if cfg == nil {
		return nil
	}
	if strings.TrimSpace(cfg.GatewayName) == "" {
		cfg.GatewayName = DefaultGatewayName
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`UPDATE gateway_config SET product_key = ?, device_key = ?, gateway_name = ?, updated_at = ? WHERE id = 1`,
		strings.TrimSpace(cfg.ProductKey), strings.TrimSpace(cfg.DeviceKey), cfg.GatewayName, now,
	)
	if err != nil {
		return err
	}
	cfg.UpdatedAt = now
	return nil
}

// GetGatewayIdentity 获取网关身份信息 (productKey, deviceKey)
func (s *Store) GetGatewayIdentity(ctx context.Context) (string, string, error) {
	cfg, err := s.GetGatewayConfig(ctx)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSpace(cfg.ProductKey), strings.TrimSpace(cfg.DeviceKey), nil
}
