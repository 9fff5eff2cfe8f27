package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

//go:embed default.yaml
var defaultCatalog []byte

// Command describes one command a device type may support.
type Command struct {
	Name        string
	Description string
	Friendly    string

	// Event is raised with the command's result after a successful run.
	Event string

	// Request is nil for commands that take no body.
	Request  *Schema
	Response *Schema
}

// Event describes one event a device type may raise.
type Event struct {
	Name        string
	Description string

	// Response is nil when the payload is not validated.
	Response *Schema
}

// DeviceType groups the commands and events of one device type.
type DeviceType struct {
	Name     string
	Commands map[string]*Command
	Events   map[string]*Event
}

// Catalog is the immutable, compiled schema catalog. It is safe for
// concurrent use because nothing mutates it after Load.
type Catalog struct {
	types map[string]*DeviceType
}

type fileFormat struct {
	Types map[string]typeFormat `yaml:"types"`
}

type typeFormat struct {
	Commands map[string]commandFormat `yaml:"commands"`
	Events   map[string]eventFormat   `yaml:"events"`
}

type commandFormat struct {
	Description string `yaml:"description"`
	Friendly    string `yaml:"friendly"`
	Event       string `yaml:"event"`
	Request     any    `yaml:"request"`
	Response    any    `yaml:"response"`
}

type eventFormat struct {
	Description string `yaml:"description"`
	Response    any    `yaml:"response"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog))
}

// LoadFile reads and compiles a catalog file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a YAML catalog and compiles every schema in it.
//
// Loading fails when a device type is not one of device.Types, a command
// has no response schema, or a schema does not compile.
func Load(r io.Reader) (*Catalog, error) {
	var file fileFormat
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	cat := &Catalog{types: make(map[string]*DeviceType, len(file.Types))}
	for typeName, tf := range file.Types {
		if !device.ValidType(typeName) {
			return nil, fmt.Errorf("catalog: unknown device type %q", typeName)
		}
		dt, err := compileType(typeName, tf)
		if err != nil {
			return nil, err
		}
		cat.types[typeName] = dt
	}
	return cat, nil
}

func compileType(typeName string, tf typeFormat) (*DeviceType, error) {
	dt := &DeviceType{
		Name:     typeName,
		Commands: make(map[string]*Command, len(tf.Commands)),
		Events:   make(map[string]*Event, len(tf.Events)),
	}

	for name, ef := range tf.Events {
		ev := &Event{Name: name, Description: ef.Description}
		if ef.Response != nil {
			s, err := compileSchema(schemaURL(typeName, "events", name, "response"), ef.Response)
			if err != nil {
				return nil, err
			}
			ev.Response = s
		}
		dt.Events[name] = ev
	}

	for name, cf := range tf.Commands {
		if cf.Response == nil {
			return nil, fmt.Errorf("catalog: %s.%s has no response schema", typeName, name)
		}
		cmd := &Command{
			Name:        name,
			Description: cf.Description,
			Friendly:    cf.Friendly,
			Event:       cf.Event,
		}
		if cmd.Event == "" {
			cmd.Event = name
		}

		var err error
		if cmd.Response, err = compileSchema(schemaURL(typeName, "commands", name, "response"), cf.Response); err != nil {
			return nil, err
		}
		if cf.Request != nil {
			if cmd.Request, err = compileSchema(schemaURL(typeName, "commands", name, "request"), cf.Request); err != nil {
				return nil, err
			}
		}
		dt.Commands[name] = cmd
	}

	// Command events not declared explicitly carry the command's result,
	// so they share its response schema.
	for _, cmd := range dt.Commands {
		if _, declared := dt.Events[cmd.Event]; !declared {
			dt.Events[cmd.Event] = &Event{
				Name:        cmd.Event,
				Description: cmd.Description,
				Response:    cmd.Response,
			}
		}
	}

	return dt, nil
}

func schemaURL(typeName, section, name, which string) string {
	return fmt.Sprintf("https://grayhub.invalid/catalog/%s/%s/%s/%s.json", typeName, section, name, which)
}

// Types returns the device types present in the catalog, sorted.
func (c *Catalog) Types() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Type returns the descriptors for a device type.
func (c *Catalog) Type(deviceType string) (*DeviceType, bool) {
	dt, ok := c.types[deviceType]
	return dt, ok
}

// Command returns the descriptor for (deviceType, name).
func (c *Catalog) Command(deviceType, name string) (*Command, bool) {
	dt, ok := c.types[deviceType]
	if !ok {
		return nil, false
	}
	cmd, ok := dt.Commands[name]
	return cmd, ok
}

// Event returns the descriptor for (deviceType, name).
func (c *Catalog) Event(deviceType, name string) (*Event, bool) {
	dt, ok := c.types[deviceType]
	if !ok {
		return nil, false
	}
	ev, ok := dt.Events[name]
	return ev, ok
}

// Events returns the event descriptors of a device type. The map must not
// be modified.
func (c *Catalog) Events(deviceType string) map[string]*Event {
	if dt, ok := c.types[deviceType]; ok {
		return dt.Events
	}
	return nil
}

// CommandDoc is the serialisable form of a Command.
type CommandDoc struct {
	Description string          `json:"description,omitempty"`
	Friendly    string          `json:"friendly,omitempty"`
	Event       string          `json:"event"`
	Request     json.RawMessage `json:"request,omitempty"`
	Response    json.RawMessage `json:"response"`
}

// EventDoc is the serialisable form of an Event.
type EventDoc struct {
	Description string          `json:"description,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
}

// TypeDoc is the serialisable form of a DeviceType.
type TypeDoc struct {
	Commands map[string]CommandDoc `json:"commands"`
	Events   map[string]EventDoc   `json:"events"`
}

// Describe returns the whole catalog in serialisable form, keyed by type.
func (c *Catalog) Describe() map[string]TypeDoc {
	out := make(map[string]TypeDoc, len(c.types))
	for name, dt := range c.types {
		doc := TypeDoc{
			Commands: make(map[string]CommandDoc, len(dt.Commands)),
			Events:   make(map[string]EventDoc, len(dt.Events)),
		}
		for cmdName, cmd := range dt.Commands {
			doc.Commands[cmdName] = CommandDoc{
				Description: cmd.Description,
				Friendly:    cmd.Friendly,
				Event:       cmd.Event,
				Request:     cmd.Request.Raw(),
				Response:    cmd.Response.Raw(),
			}
		}
		for evName, ev := range dt.Events {
			doc.Events[evName] = EventDoc{
				Description: ev.Description,
				Response:    ev.Response.Raw(),
			}
		}
		out[name] = doc
	}
	return out
}
