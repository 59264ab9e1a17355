package database

import (
	"os"
	"strings"

	"github.com/spf13/cast"
)

// envPositiveInt 读取正整数环境变量，缺失或非法时返回 fallback
func envPositiveInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := cast.ToIntE(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
