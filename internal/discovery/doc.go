// Package discovery reconciles the persisted device inventory with what a
// driver reports.
//
// A sweep asks the driver for its current devices, then brings the
// database in line in three phases: devices still reported are updated,
// devices no longer reported are deleted, and new ones are created. The
// driver is then handed the resulting set and a "discovery" event is
// recorded with the counts.
//
// Sweeps of the same driver never overlap; sweeps of different drivers
// run independently.
package discovery
