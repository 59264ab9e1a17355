package runtime

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultMQTTPort = 1883

// normalizeBrokerURL 补全协议与端口，例如 127.0.0.1 -> tcp://127.0.0.1:1883
func normalizeBrokerURL(serverURL, protocol string, port int) string {
	serverURL = strings.TrimSpace(serverURL)
	if serverURL == "" {
		return ""
	}

	if !strings.Contains(serverURL, "://") {
		transport := strings.TrimSpace(protocol)
		if transport == "" {
			transport = "tcp"
		}
		serverURL = transport + "://" + serverURL
	}

	if port <= 0 {
		return serverURL
	}

	parsed, err := url.Parse(serverURL)
	if err != nil || parsed.Port() != "" {
		return serverURL
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return serverURL
	}

	if port == defaultMQTTPort {
		switch strings.ToLower(parsed.Scheme) {
		case "ssl", "tls", "mqtts":
			port = 8883
		case "ws":
			port = 80
		case "wss":
			port = 443
		}
	}

	parsed.Host = net.JoinHostPort(hostname, strconv.Itoa(port))
	return parsed.String()
}
