package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/keyfold/keyfold-core/internal/infrastructure/config"
)

const (
	// connectTimeout bounds the initial connection attempt.
	connectTimeout = 10 * time.Second

	// publishTimeout bounds the wait for a publish acknowledgement.
	publishTimeout = 5 * time.Second

	// disconnectQuiesceMs gives in-flight messages time to drain on Close.
	disconnectQuiesceMs = 1000

	// keepAlive is the ping interval detecting dead connections.
	keepAlive = 60 * time.Second

	// Reconnect backoff bounds.
	reconnectInitialDelay = 1 * time.Second
	reconnectMaxDelay     = 60 * time.Second

	// maxQoS is the highest MQTT QoS level.
	maxQoS = 2
)

// buildClientOptions translates the mqtt config section into paho
// options: broker URL, credentials, auto-reconnect with backoff, TLS
// and the Last Will announcing an unclean disappearance.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	// Fresh session per process; the platform republishes its retained
	// state on connect.
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(reconnectInitialDelay)
	opts.SetMaxReconnectInterval(reconnectMaxDelay)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	// Last Will: the broker announces the crash for us.
	opts.SetWill(Topics{}.SystemStatus(),
		statusPayload(cfg.Broker.ClientID, "offline", "unexpected_disconnect"), 1, true)

	return opts
}

// statusPayload builds a presence message for keyfold/system/status.
// reason is omitted when empty.
func statusPayload(clientID, status, reason string) string {
	timestamp := time.Now().UTC().Format(time.RFC3339)
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, timestamp)
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, timestamp)
}
