package schema

// PandaXConfigSchema is the schema source for PandaX (ThingsBoard-style topics).
var PandaXConfigSchema = append([]Field{
	requiredString("serverUrl", "MQTT 地址", "例如 tcp://127.0.0.1:1883"),
	requiredString("username", "设备 Token", "PandaX 使用 MQTT Username 认证"),
	optionalString("password", "密码", "", "默认可留空"),
	optionalString("clientId", "Client ID", "", "可为空，自动生成"),
	qosField(),
	retainField(),
	keepAliveField(),
	connectTimeoutField(),
	optionalBool(KeyGatewayMode, "网关模式", true, "按 v1/gateway/* 上报"),
	optionalString("subDeviceTokenMode", "子设备 Token 规则", "deviceName", "deviceName/deviceKey/product_deviceKey"),
	optionalString("gatewayTelemetryTopic", "网关遥测 Topic", "v1/gateway/telemetry", "默认 PandaX 网关遥测主题"),
	optionalString("gatewayAttributesTopic", "网关属性 Topic", "v1/gateway/attributes", "默认 PandaX 网关属性主题"),
	optionalString("eventTopicPrefix", "事件 Topic 前缀", "v1/devices/event", "事件上报前缀"),
	optionalString("alarmIdentifier", "报警标识", "alarm", "事件标识，例如 alarm"),
	optionalString("rpcRequestTopic", "RPC 下行 Topic", "v1/devices/me/rpc/request", "默认订阅 request/+"),
	optionalString("rpcResponseTopic", "RPC 回执 Topic", "v1/devices/me/rpc/response", "命令执行结果回传"),
	uploadIntervalField("插件内部上传周期"),
	optionalString("productKey", "ProductKey", "", "用于命令路由（可选）"),
	optionalString("deviceKey", "DeviceKey", "", "用于命令路由（可选）"),
}, queueFields()...)
