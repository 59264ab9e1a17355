package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client 运行时只关心连接生命周期
type Client interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// ClientOptions 由规范化配置生成的连接参数
type ClientOptions struct {
	Name              string
	Broker            string
	ClientID          string
	Username          string
	Password          string
	CleanSession      bool
	KeepAlive         time.Duration
	ConnectTimeout    time.Duration
	ReconnectInterval time.Duration

	OnConnect        func()
	OnConnectionLost func(error)
}

// DialFunc 创建客户端（不连接）
type DialFunc func(opts ClientOptions) Client

var errConnectTimeout = errors.New("mqtt connect timeout")

type pahoClient struct {
	client  mqtt.Client
	timeout time.Duration
}

// NewPahoClient 基于 paho.mqtt 创建客户端。首次连接由调用方驱动，连上后由 paho 自动重连。
func NewPahoClient(opts ClientOptions) Client {
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout)

	if opts.Username != "" {
		co.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		co.SetPassword(opts.Password)
	}
	if opts.KeepAlive > 0 {
		co.SetKeepAlive(opts.KeepAlive)
	}
	if opts.ReconnectInterval > 0 {
		co.SetMaxReconnectInterval(opts.ReconnectInterval)
	}
	co.OnConnect = func(mqtt.Client) {
		if opts.OnConnect != nil {
			opts.OnConnect()
		}
	}
	co.OnConnectionLost = func(_ mqtt.Client, err error) {
		if opts.OnConnectionLost != nil {
			opts.OnConnectionLost(err)
		}
	}

	return &pahoClient{client: mqtt.NewClient(co), timeout: opts.ConnectTimeout}
}

func (p *pahoClient) Connect(ctx context.Context) error {
	token := p.client.Connect()

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect: %w", err)
		}
		return nil
	case <-timeout:
		p.client.Disconnect(0)
		return errConnectTimeout
	case <-ctx.Done():
		p.client.Disconnect(0)
		return ctx.Err()
	}
}

func (p *pahoClient) Disconnect() {
	if p.client.IsConnectionOpen() {
		p.client.Disconnect(250)
	}
}

func (p *pahoClient) IsConnected() bool {
	return p.client.IsConnectionOpen()
}
