package runtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbconfig"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

// ErrNoBroker 配置里找不到 broker/serverUrl
var ErrNoBroker = errors.New("northbound config has no broker address")

// resolvedConfig 记录解析出的规范化配置和连接参数
type resolvedConfig struct {
	config         nbconfig.Config
	options        ClientOptions
	uploadInterval int
}

// resolve 将记录转换为规范化配置与客户端参数。schema 可用时按 schema 规范化，
// 否则直接使用合并后的原始配置。
func (m *Manager) resolve(ctx context.Context, rec *models.NorthboundConfig) (resolvedConfig, error) {
	nbType := m.registry.Normalize(rec.Type)
	raw := nbconfig.ParseConfigFromRecord(rec, nbType, rec.UploadInterval, m.opts.DefaultUploadMs)

	cfg := nbconfig.Config(raw)
	if m.schemas != nil {
		fields, err := m.schemas.Fields(ctx, nbType)
		switch {
		case err == nil:
			cfg = nbconfig.Normalize(raw, fields, m.opts.DefaultUploadMs)
		case errors.Is(err, schema.ErrUnsupportedType):
			// 无 schema 的类型按原始配置处理
		default:
			return resolvedConfig{}, err
		}
	}

	broker := normalizeBrokerURL(nbconfig.ResolveString(cfg, "broker", "serverUrl", "server_url"), "tcp", defaultMQTTPort)
	if broker == "" {
		return resolvedConfig{}, ErrNoBroker
	}

	clientID := nbconfig.ResolveString(cfg, "clientId", "client_id")
	if clientID == "" {
		clientID = "nbconsole-" + nbType + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	}

	opts := ClientOptions{
		Name:              rec.Name,
		Broker:            broker,
		ClientID:          clientID,
		Username:          nbconfig.ResolveString(cfg, "username"),
		Password:          nbconfig.ResolveString(cfg, "password"),
		CleanSession:      true,
		ConnectTimeout:    seconds(cfg["connectTimeout"], m.opts.ConnectTimeout),
		KeepAlive:         seconds(cfg["keepAlive"], 0),
		ReconnectInterval: m.opts.ReconnectInterval,
	}
	if v, ok := cfg["cleanSession"]; ok {
		opts.CleanSession = cast.ToBool(v)
	}

	upload := cast.ToInt(cfg[schema.KeyUploadIntervalMs])
	if upload <= 0 {
		upload = m.opts.DefaultUploadMs
	}

	return resolvedConfig{config: cfg, options: opts, uploadInterval: upload}, nil
}

func seconds(v interface{}, fallback time.Duration) time.Duration {
	n, err := cast.ToIntE(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}
