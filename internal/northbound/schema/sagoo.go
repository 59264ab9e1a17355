package schema

// SagooConfigSchema 只保留关键连接参数；旧类型 xunji 共用此表。
var SagooConfigSchema = []Field{
	requiredString("productKey", "ProductKey", "网关 ProductKey（必填）"),
	requiredString("deviceKey", "DeviceKey", "网关 DeviceKey（必填）"),
	requiredString("serverUrl", "MQTT 地址", "例如 tcp://192.168.1.100:1883"),
	optionalString("username", "用户名", "", "MQTT 用户名（可选）"),
	optionalString("password", "密码", "", "MQTT 密码（可选）"),
	uploadIntervalField("属性上报周期"),
}
