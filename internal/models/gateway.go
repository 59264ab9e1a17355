package models

import "time"

// GatewayConfig 网关配置
type GatewayConfig struct {
	ProductKey  string    `json:"product_key" db:"product_key"`
	DeviceKey   string    `json:"device_key" db:"device_key"`
	GatewayName string    `json:"gateway_name" db:"gateway_name"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
