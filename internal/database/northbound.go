package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gonglijing/nbconsole/internal/models"
)

// ==================== 北向配置操作 ====================

const northboundColumns = `id, name, type, enabled, upload_interval, config,
	server_url, username, client_id, topic, alarm_topic, product_key, device_key,
	qos, retain, keep_alive, timeout,
	created_at, updated_at`

// CreateNorthboundConfig 创建北向配置
func (s *Store) CreateNorthboundConfig(ctx context.Context, config *models.NorthboundConfig) (int64, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO northbound_configs (
			name, type, enabled, upload_interval, config,
			server_url, username, client_id, topic, alarm_topic, product_key, device_key,
			qos, retain, keep_alive, timeout,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		config.Name, config.Type, config.Enabled, config.UploadInterval, config.Config,
		config.ServerURL, config.Username, config.ClientID, config.Topic, config.AlarmTopic, config.ProductKey, config.DeviceKey,
		nullInt(config.QOS), nullBool(config.Retain), nullInt(config.KeepAlive), nullInt(config.Timeout),
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	config.CreatedAt, config.UpdatedAt = now, now
	return result.LastInsertId()
}

// GetNorthboundConfigByID 根据ID获取北向配置
func (s *Store) GetNorthboundConfigByID(ctx context.Context, id int64) (*models.NorthboundConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+northboundColumns+` FROM northbound_configs WHERE id = ?`, id)
	config, err := scanNorthboundConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return config, err
}

// GetNorthboundConfigByName 根据名称获取北向配置
func (s *Store) GetNorthboundConfigByName(ctx context.Context, name string) (*models.NorthboundConfig, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+northboundColumns+` FROM northbound_configs WHERE name = ?`, name)
	config, err := scanNorthboundConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return config, err
}

// GetAllNorthboundConfigs 获取所有北向配置
func (s *Store) GetAllNorthboundConfigs(ctx context.Context) ([]*models.NorthboundConfig, error) {
	return queryList[*models.NorthboundConfig](ctx, s.db,
		`SELECT `+northboundColumns+` FROM northbound_configs ORDER BY id`,
		nil,
		func(rows *sql.Rows) (*models.NorthboundConfig, error) { return scanNorthboundConfig(rows) },
	)
}

// GetEnabledNorthboundConfigs 获取所有启用的北向配置
func (s *Store) GetEnabledNorthboundConfigs(ctx context.Context) ([]*models.NorthboundConfig, error) {
	return queryList[*models.NorthboundConfig](ctx, s.db,
		`SELECT `+northboundColumns+` FROM northbound_configs WHERE enabled = 1 ORDER BY id`,
		nil,
		func(rows *sql.Rows) (*models.NorthboundConfig, error) { return scanNorthboundConfig(rows) },
	)
}

// UpdateNorthboundConfig 更新北向配置（后写覆盖）
func (s *Store) UpdateNorthboundConfig(ctx context.Context, config *models.NorthboundConfig) error {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		`UPDATE northbound_configs SET
			name = ?, type = ?, enabled = ?, upload_interval = ?, config = ?,
			server_url = ?, username = ?, client_id = ?, topic = ?, alarm_topic = ?, product_key = ?, device_key = ?,
			qos = ?, retain = ?, keep_alive = ?, timeout = ?,
			updated_at = ?
		WHERE id = ?`,
		config.Name, config.Type, config.Enabled, config.UploadInterval, config.Config,
		config.ServerURL, config.Username, config.ClientID, config.Topic, config.AlarmTopic, config.ProductKey, config.DeviceKey,
		nullInt(config.QOS), nullBool(config.Retain), nullInt(config.KeepAlive), nullInt(config.Timeout),
		now,
		config.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateName
		}
		return err
	}
	config.UpdatedAt = now
	return expectAffected(result)
}

// UpdateNorthboundEnabled 更新北向使能状态
func (s *Store) UpdateNorthboundEnabled(ctx context.Context, id int64, enabled int) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE northbound_configs SET enabled = ?, updated_at = ? WHERE id = ?",
		enabled, time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

// DeleteNorthboundConfig 删除北向配置
func (s *Store) DeleteNorthboundConfig(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM northbound_configs WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNorthboundConfig(row rowScanner) (*models.NorthboundConfig, error) {
	config := &models.NorthboundConfig{}
	var qos, retain, keepAlive, timeout sql.NullInt64
	if err := row.Scan(
		&config.ID, &config.Name, &config.Type, &config.Enabled, &config.UploadInterval, &config.Config,
		&config.ServerURL, &config.Username, &config.ClientID, &config.Topic, &config.AlarmTopic, &config.ProductKey, &config.DeviceKey,
		&qos, &retain, &keepAlive, &timeout,
		&config.CreatedAt, &config.UpdatedAt,
	); err != nil {
		return nil, err
	}
	config.QOS = intFromNull(qos)
	config.KeepAlive = intFromNull(keepAlive)
	config.Timeout = intFromNull(timeout)
	if retain.Valid {
		v := retain.Int64 != 0
		config.Retain = &v
	}
	return config, nil
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullBool(v *bool) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	if *v {
		return sql.NullInt64{Int64: 1, Valid: true}
	}
	return sql.NullInt64{Int64: 0, Valid: true}
}

func intFromNull(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
