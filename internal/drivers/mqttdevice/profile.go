package mqttdevice

import (
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// commandSpec describes how one command changes a device's state. A read
// command returns the cached state without publishing.
type commandSpec struct {
	patch map[string]any
	read  bool
}

// profile is the command table and state model for one device type.
type profile struct {
	commands   map[string]commandSpec
	initial    map[string]any
	stateEvent string
}

func (p profile) capabilities() map[string]bool {
	caps := make(map[string]bool, len(p.commands))
	for name := range p.commands {
		caps[name] = true
	}
	return caps
}

// builtinProfiles covers the device types whose state is simple enough to
// model without configuration.
var builtinProfiles = map[device.Type]profile{
	device.TypeLight: {
		commands: map[string]commandSpec{
			"on":            {patch: map[string]any{"on": true}},
			"off":           {patch: map[string]any{"on": false}},
			"setBrightness": {patch: map[string]any{"on": true}},
			"getState":      {read: true},
		},
		initial:    map[string]any{"on": false},
		stateEvent: "stateChanged",
	},
	device.TypeSocket: {
		commands: map[string]commandSpec{
			"on":       {patch: map[string]any{"on": true}},
			"off":      {patch: map[string]any{"on": false}},
			"getState": {read: true},
		},
		initial:    map[string]any{"on": false},
		stateEvent: "stateChanged",
	},
	device.TypeBlind: {
		commands: map[string]commandSpec{
			"open":        {patch: map[string]any{"position": 100}},
			"close":       {patch: map[string]any{"position": 0}},
			"stop":        {},
			"setPosition": {},
		},
		initial:    map[string]any{"position": 0},
		stateEvent: "positionChanged",
	},
}

// loadProfile starts from the built-in profile for deviceType and applies
// the driver's options:
//
//	commands:       {name: {field: value}}  a null value makes a read command
//	initial_state:  {field: value}
//	state_event:    event name for reports without one
func loadProfile(deviceType device.Type, options map[string]any) (profile, error) {
	base, ok := builtinProfiles[deviceType]
	p := profile{
		commands:   make(map[string]commandSpec),
		initial:    map[string]any{},
		stateEvent: "stateChanged",
	}
	if ok {
		for name, spec := range base.commands {
			p.commands[name] = spec
		}
		p.initial = copyState(base.initial)
		p.stateEvent = base.stateEvent
	}

	if raw, present := options["commands"]; present {
		cmds, isMap := raw.(map[string]any)
		if !isMap {
			return profile{}, fmt.Errorf("option commands must be a map, got %T", raw)
		}
		for name, v := range cmds {
			switch patch := v.(type) {
			case nil:
				p.commands[name] = commandSpec{read: true}
			case map[string]any:
				p.commands[name] = commandSpec{patch: patch}
			default:
				return profile{}, fmt.Errorf("option commands.%s must be a map or null, got %T", name, v)
			}
		}
	}

	if raw, present := options["initial_state"]; present {
		initial, isMap := raw.(map[string]any)
		if !isMap {
			return profile{}, fmt.Errorf("option initial_state must be a map, got %T", raw)
		}
		p.initial = merge(p.initial, initial)
	}

	if raw, present := options["state_event"]; present {
		name, isString := raw.(string)
		if !isString || name == "" {
			return profile{}, fmt.Errorf("option state_event must be a non-empty string")
		}
		p.stateEvent = name
	}

	if len(p.commands) == 0 {
		return profile{}, fmt.Errorf("no command table for %s devices; set the commands option", deviceType)
	}
	return p, nil
}
