package schema

// MQTTConfigSchema is the schema source for generic MQTT northbound config.
var MQTTConfigSchema = []Field{
	requiredString("broker", "Broker 地址", "例如 tcp://127.0.0.1:1883"),
	requiredString("topic", "数据 Topic", "实时数据上报主题"),
	optionalString("alarmTopic", "报警 Topic", "", "为空时默认在数据 Topic 后加 /alarm"),
	optionalString("clientId", "Client ID", "", "为空时自动生成"),
	optionalString("username", "用户名", "", "MQTT 用户名（可选）"),
	optionalString("password", "密码", "", "MQTT 密码（可选）"),
	qosField(),
	retainField(),
	optionalBool("cleanSession", "Clean Session", true, "断开后是否清除会话"),
	keepAliveField(),
	connectTimeoutField(),
	uploadIntervalField("数据上报周期"),
}
