// Package mqttdevice is a generic driver for devices that talk to the hub
// over MQTT.
//
// Devices announce themselves with a retained message on
// grayhub/announce/{driverId}/{localId}; Discover returns whatever is
// currently announced. Commands are published on
// grayhub/command/{driverId}/{localId}/{command} with the state the
// device is asked to reach, and that state is returned to the hub.
// Unsolicited reports on grayhub/report/{driverId}/{localId} become
// events.
//
// Lights, sockets and blinds have built-in command tables. Other device
// types need the commands option:
//
//	drivers:
//	  options:
//	    mqtt-thermostat:
//	      commands:
//	        setTarget: {mode: heat}
//	        getState: null
//	      initial_state: {target: 20}
package mqttdevice
