// Package agent is the device-side half of the admission protocol: an HTTP
// client for the session endpoints, a liveness monitor that polls verify and
// reacts to eviction, and a guard that drives the admission state machine for
// one device.
package agent
