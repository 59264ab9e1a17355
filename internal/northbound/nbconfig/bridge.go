package nbconfig

import (
	"strings"

	"github.com/gonglijing/nbconsole/internal/models"
	"github.com/gonglijing/nbconsole/internal/northbound/nbtype"
	"github.com/gonglijing/nbconsole/internal/northbound/schema"
)

const serverAddressPlaceholder = "-"

var serverURLKeys = []string{"serverUrl", "server_url", "broker"}

// 扁平列 -> 嵌套配置键的回填规则
type flatBackfill struct {
	target string
	keys   []string
	value  func(*models.NorthboundConfig) string
}

var flatBackfills = []flatBackfill{
	{target: "clientId", keys: []string{"clientId", "client_id"}, value: func(r *models.NorthboundConfig) string { return r.ClientID }},
	{target: "username", keys: []string{"username"}, value: func(r *models.NorthboundConfig) string { return r.Username }},
	{target: "topic", keys: []string{"topic"}, value: func(r *models.NorthboundConfig) string { return r.Topic }},
	{target: "alarmTopic", keys: []string{"alarmTopic", "alarm_topic"}, value: func(r *models.NorthboundConfig) string { return r.AlarmTopic }},
	{target: "productKey", keys: []string{"productKey", "product_key"}, value: func(r *models.NorthboundConfig) string { return r.ProductKey }},
	{target: "deviceKey", keys: []string{"deviceKey", "device_key"}, value: func(r *models.NorthboundConfig) string { return r.DeviceKey }},
}

// ParseConfigFromRecord builds the raw config for an existing record: the
// nested config JSON, backfilled from flat legacy columns it does not define.
// Nested values always win.
func ParseConfigFromRecord(rec *models.NorthboundConfig, nbType string, uploadIntervalMs, fallbackUploadMs int) map[string]interface{} {
	merged := map[string]interface{}{}
	if rec != nil {
		for k, v := range SafeParseJSON(rec.Config) {
			merged[k] = v
		}
		backfillFromRecord(merged, rec, nbtype.Normalize(nbType))
	}

	if toIntOr(merged[schema.KeyUploadIntervalMs], 0) <= 0 {
		if uploadIntervalMs > 0 {
			merged[schema.KeyUploadIntervalMs] = uploadIntervalMs
		} else {
			merged[schema.KeyUploadIntervalMs] = fallbackUploadMs
		}
	}
	return merged
}

func backfillFromRecord(merged map[string]interface{}, rec *models.NorthboundConfig, nbType string) {
	if serverURL := rec.EffectiveServerURL(); serverURL != "" && ResolveString(merged, serverURLKeys...) == "" {
		if nbType == nbtype.TypeMQTT {
			merged["broker"] = serverURL
		} else {
			merged["serverUrl"] = serverURL
		}
	}

	for _, b := range flatBackfills {
		if ResolveString(merged, b.keys...) != "" {
			continue
		}
		if v := strings.TrimSpace(b.value(rec)); v != "" {
			merged[b.target] = v
		}
	}

	if _, ok := merged[schema.KeyQOS]; !ok && rec.QOS != nil {
		merged[schema.KeyQOS] = *rec.QOS
	}
	if _, ok := merged["retain"]; !ok && rec.Retain != nil {
		merged["retain"] = *rec.Retain
	}
	if _, ok := merged["keepAlive"]; !ok && rec.KeepAlive != nil {
		merged["keepAlive"] = *rec.KeepAlive
	}
	if _, ok := merged["connectTimeout"]; !ok && rec.Timeout != nil {
		merged["connectTimeout"] = *rec.Timeout
	}
}

// FillPayloadFromConfig copies connection settings from cfg onto the flat
// payload columns. Columns the caller already set are preserved.
func FillPayloadFromConfig(p *models.NorthboundConfig, cfg map[string]interface{}) {
	if p == nil {
		return
	}
	fill := func(dst *string, keys ...string) {
		if strings.TrimSpace(*dst) != "" {
			return
		}
		if v := ResolveString(cfg, keys...); v != "" {
			*dst = v
		}
	}
	fill(&p.ServerURL, serverURLKeys...)
	fill(&p.Username, "username")
	fill(&p.ClientID, "clientId", "client_id")
	fill(&p.Topic, "topic")
	fill(&p.AlarmTopic, "alarmTopic", "alarm_topic")
	fill(&p.ProductKey, "productKey", "product_key")
	fill(&p.DeviceKey, "deviceKey", "device_key")
}

// ServerAddress returns the address shown for a record, or "-".
func ServerAddress(rec *models.NorthboundConfig) string {
	if rec == nil {
		return serverAddressPlaceholder
	}
	if direct := rec.EffectiveServerURL(); direct != "" {
		return direct
	}
	if addr := ResolveString(SafeParseJSON(rec.Config), serverURLKeys...); addr != "" {
		return addr
	}
	return serverAddressPlaceholder
}
