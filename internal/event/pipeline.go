package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/catalog"
	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

// DefaultPageSize is the number of events EventsByType returns.
const DefaultPageSize = 100

// Pipeline validates, persists and republishes domain events.
//
// Persistence failures are logged and swallowed: a producer whose event
// was valid always sees success, and the event still reaches the bus.
type Pipeline struct {
	catalog  *catalog.Catalog
	repo     Repository
	bus      *Bus
	logger   Logger
	pageSize int
	now      func() time.Time
}

// NewPipeline creates a pipeline over the catalog, store and bus.
func NewPipeline(cat *catalog.Catalog, repo Repository, bus *Bus) *Pipeline {
	return &Pipeline{
		catalog:  cat,
		repo:     repo,
		bus:      bus,
		logger:   noopLogger{},
		pageSize: DefaultPageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the pipeline.
func (p *Pipeline) SetLogger(logger Logger) {
	p.logger = logger
}

// SetPageSize overrides the EventsByType page size. Values <= 0 are ignored.
func (p *Pipeline) SetPageSize(n int) {
	if n > 0 {
		p.pageSize = n
	}
}

// Record validates and stores one event, then publishes it on the bus.
//
// Device events must name an event declared in the catalog for their
// device type; when the declaration has a response schema the value must
// match it. Both failures are Driver errors attributed to the producer.
func (p *Pipeline) Record(ctx context.Context, ev Event) error {
	if ev.Type == "" {
		ev.Type = TypeDevice
	}
	if len(ev.Value) == 0 {
		ev.Value = json.RawMessage("null")
	}
	if ev.Type == TypeDevice {
		if err := p.validate(ev); err != nil {
			return err
		}
	}

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = p.now()
	}

	if err := p.repo.Insert(ctx, &ev); err != nil {
		p.logger.Error("persisting event failed",
			"event_type", ev.Type, "event", ev.Name, "device_id", ev.DeviceID, "error", err)
	}

	if err := p.bus.Publish(ev); err != nil && !errors.Is(err, ErrBusClosed) {
		p.logger.Warn("publishing event failed", "event", ev.Name, "error", err)
	}
	p.logger.Debug("event recorded", "event_type", ev.Type, "event", ev.Name, "device_id", ev.DeviceID)
	return nil
}

// Emit encodes value and records it as a device event.
func (p *Pipeline) Emit(ctx context.Context, deviceType, driverID, deviceID, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fault.DriverFault(driverID, err, fmt.Sprintf("event %q value is not JSON encodable", name))
	}
	return p.Record(ctx, Event{
		Type:       TypeDevice,
		DriverType: deviceType,
		DriverID:   driverID,
		DeviceID:   deviceID,
		Name:       name,
		Value:      raw,
	})
}

func (p *Pipeline) validate(ev Event) error {
	desc, ok := p.catalog.Event(ev.DriverType, ev.Name)
	if !ok {
		return fault.DriverFault(ev.DriverID, nil,
			fmt.Sprintf("event %q is not declared for device type %q", ev.Name, ev.DriverType))
	}
	if desc.Response == nil {
		return nil
	}
	if issues := desc.Response.Validate(ev.Value); issues != nil {
		return &fault.Error{
			Kind:     fault.Driver,
			Message:  fmt.Sprintf("event %q carries invalid json", ev.Name),
			DriverID: ev.DriverID,
			Details:  issues,
		}
	}
	return nil
}

// EventsByType returns the next page of events of eventType, oldest
// first. With a fromEventID only events recorded after it are returned; an
// unknown fromEventID yields an empty page.
func (p *Pipeline) EventsByType(ctx context.Context, eventType, fromEventID string) ([]Event, error) {
	var after int64
	if fromEventID != "" {
		cursor, err := p.repo.GetByID(ctx, fromEventID)
		if errors.Is(err, ErrEventNotFound) {
			return []Event{}, nil
		}
		if err != nil {
			return nil, fault.Wrap(fault.Internal, err, "loading event cursor")
		}
		after = cursor.Seq
	}

	events, err := p.repo.ListByType(ctx, eventType, after, p.pageSize)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "listing events")
	}
	return events, nil
}
