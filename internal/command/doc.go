// Package command dispatches commands to the driver that owns a device.
//
// Every command passes two schema checks from the catalog: the request
// body before the driver runs, and the driver's result before it is
// returned or raised as an event.
package command
