// Package driver defines the plugin contract and loads plugins.
//
// A plugin is a Registration in the explicit list built in main. Load calls
// each factory with its Deps (settings, transport interface, catalog event
// descriptors, a bound event emitter, the event bus and a logger), checks
// the returned Driver's command table against the schema catalog, and seeds
// it with the devices already persisted for it. A plugin that fails any of
// these steps is recorded in Failures and the rest still load.
//
// Every call into a plugin goes through Call, which bounds it with the
// configured timeout and classifies the outcome with package fault.
//
//	reg := driver.Load(ctx, registrations, driver.NewInterfaces(mqttClient, cfg.Drivers.HTTP), driver.Services{
//	    Catalog:     cat,
//	    Devices:     devices,
//	    Settings:    driver.NewSQLiteSettingsStore(db.DB),
//	    Events:      pipeline,
//	    Bus:         bus,
//	    Logger:      log,
//	    CallTimeout: cfg.Drivers.CallTimeout,
//	})
package driver
