// Package mqtt connects Keyfold to its event broker.
//
// Keyfold is strictly a publisher on the bus: device state changes and
// platform presence go out so dashboards and smart-building integrations
// can react without polling the HTTP API. Nothing is consumed back; the
// platform's inputs arrive over HTTP and the vendor adapters.
//
//	Keyfold Core -> MQTT Broker -> Dashboards / Integrations
//
// Presence is announced on keyfold/system/status: an online message on
// connect, a graceful offline message on Close, and a Last Will the
// broker fires if the platform drops away uncleanly.
//
// TLS and credentials come from the mqtt section of config.yaml;
// anonymous plaintext is for local development only.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	client.Publish(mqtt.Topics{}.DeviceState("dev-4a1f"),
//		[]byte(`{"state":"locked"}`), 1, true)
package mqtt
