// Package device holds the hub's persisted device inventory.
//
// A Device is one controllable unit (a speaker, a light, a doorbell) owned
// by exactly one driver. Its ID is derived from the device type, the owning
// driver and the driver's local identifier, so the same physical device keeps
// the same ID across restarts and rediscovery.
//
// # Key Types
//
//   - Device: the persisted record, with driver-reported Specs
//   - Type: the closed set of device types (light, speaker, ...)
//   - Repository: persistence contract, implemented by SQLiteRepository
//   - Registry: a write-through cache that also implements Repository
//
// # Usage
//
//	repo := device.NewSQLiteRepository(db.DB)
//	registry := device.NewRegistry(repo)
//	registry.SetLogger(log)
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	speakers, _ := registry.ListByTypeAndDriver(ctx, device.TypeSpeaker, "sonos")
//
// Devices are created, updated and deleted by the discovery package; nothing
// else writes to the inventory.
//
// # Thread Safety
//
// Registry is safe for concurrent use. The Repository implementation must
// also be thread-safe.
package device
