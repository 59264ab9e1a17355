package schema

// IThingsConfigSchema is the schema source for iThings gateway/sub-device mode.
var IThingsConfigSchema = append([]Field{
	requiredString("serverUrl", "MQTT 地址", "例如 tcp://127.0.0.1:1883"),
	requiredString("username", "用户名", "iThings MQTT 用户名"),
	optionalString("password", "密码", "", "iThings MQTT 密码"),
	requiredString("productKey", "网关 ProductID", "网关产品ID（上行/下行路由）"),
	requiredString("deviceKey", "网关 DeviceName", "网关设备名（上行/下行路由）"),
	optionalString("clientId", "Client ID", "", "可为空，自动生成"),
	qosField(),
	retainField(),
	keepAliveField(),
	connectTimeoutField(),
	optionalBool(KeyGatewayMode, "网关模式", true, "仅支持 true（网关+子设备）"),
	optionalString("deviceNameMode", "设备名映射", "deviceKey", "deviceKey 或 deviceName"),
	optionalString("upPropertyTopicTemplate", "属性上行 Topic", "$thing/up/property/{productID}/{deviceName}", "属性/packReport 上报 Topic 模板"),
	optionalString("upEventTopicTemplate", "事件上行 Topic", "$thing/up/event/{productID}/{deviceName}", "事件/eventPost 上报 Topic 模板"),
	optionalString("downPropertyTopic", "属性下行订阅", "$thing/down/property/+/+", "属性控制下发订阅 Topic"),
	optionalString("alarmEventID", "报警事件ID", "alarm", "报警上报 eventID"),
	uploadIntervalField("插件内部上传周期"),
}, queueFields()...)
