package driver

import (
	"github.com/go-resty/resty/v2"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// Transport interface names a registration may ask for.
const (
	InterfaceMQTT = "mqtt"
	InterfaceHTTP = "http"
)

// Interfaces resolves a registration's transport name to the shared
// client handed to the plugin.
type Interfaces interface {
	Interface(name string) (any, bool)
}

// InterfaceSet is a static Interfaces provider.
type InterfaceSet map[string]any

// Interface implements Interfaces.
func (s InterfaceSet) Interface(name string) (any, bool) {
	v, ok := s[name]
	return v, ok
}

// NewInterfaces builds the hub's transports: the shared MQTT client, when
// connected, and an HTTP client configured from cfg.
func NewInterfaces(mqttClient *mqtt.Client, cfg config.DriverHTTPConfig) InterfaceSet {
	set := InterfaceSet{
		InterfaceHTTP: NewHTTPClient(cfg),
	}
	if mqttClient != nil {
		set[InterfaceMQTT] = mqttClient
	}
	return set
}

// NewHTTPClient returns the resty client drivers use for vendor APIs.
func NewHTTPClient(cfg config.DriverHTTPConfig) *resty.Client {
	client := resty.New().
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "grayhub")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
	}
	return client
}
