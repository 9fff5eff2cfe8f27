// Package mqtt provides the hub's shared MQTT client.
//
// The hub uses one broker connection for two purposes:
//
//   - it is the "mqtt" interface handed to drivers that talk to devices
//     over MQTT (see internal/drivers/mqttdevice)
//   - it is an event sink: every recorded domain event is republished
//     on grayhub/event/{type}/{deviceId}
//
// The client reconnects automatically and restores its subscriptions.
// A retained status message on grayhub/system/status, backed by a Last
// Will, tells other services whether the hub is online.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.DriverReports("mqtt-light"), 1,
//	    func(topic string, payload []byte) error {
//	        driverID, localID, ok := mqtt.ParseDeviceTopic(topic)
//	        ...
//	    })
package mqtt
