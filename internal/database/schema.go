package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const createNorthboundTable = `CREATE TABLE IF NOT EXISTS northbound_configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	type TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,
	upload_interval INTEGER NOT NULL DEFAULT 5000,
	config TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

const createGatewayTable = `CREATE TABLE IF NOT EXISTS gateway_config (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	gateway_name TEXT NOT NULL DEFAULT '',
	product_key TEXT NOT NULL DEFAULT '',
	device_key TEXT NOT NULL DEFAULT '',
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`

// 兼容旧版本的扁平列，按需补齐
var northboundLegacyColumns = []struct {
	name    string
	typeDef string
}{
	{name: "server_url", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "username", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "client_id", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "topic", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "alarm_topic", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "product_key", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "device_key", typeDef: "TEXT NOT NULL DEFAULT ''"},
	{name: "qos", typeDef: "INTEGER"},
	{name: "retain", typeDef: "INTEGER"},
	{name: "keep_alive", typeDef: "INTEGER"},
	{name: "timeout", typeDef: "INTEGER"},
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range []string{createNorthboundTable, createGatewayTable} {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	if err := s.ensureNorthboundConfigColumns(ctx); err != nil {
		return fmt.Errorf("failed to migrate northbound columns: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO gateway_config (id) VALUES (1)`); err != nil {
		return fmt.Errorf("failed to seed gateway config: %w", err)
	}
	// xunji 已合并为 sagoo
	if _, err := s.db.ExecContext(ctx, `UPDATE northbound_configs SET type = 'sagoo' WHERE LOWER(TRIM(type)) = 'xunji'`); err != nil {
		return fmt.Errorf("failed to migrate legacy northbound type: %w", err)
	}
	return nil
}

func (s *Store) ensureNorthboundConfigColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info(northbound_configs)")
	if err != nil {
		return err
	}
	defer rows.Close()

	hasColumn := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return err
		}
		hasColumn[strings.ToLower(strings.TrimSpace(name))] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	for _, col := range northboundLegacyColumns {
		if hasColumn[col.name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE northbound_configs ADD COLUMN %s %s", col.name, col.typeDef)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
