// Package probe performs the HTTP checks behind every heartbeat.
//
// A probe is bounded by attempts x timeout; transport failures are retried,
// HTTP responses of any status are final. The package also discovers the
// probing region from a trace endpoint once per tick.
package probe
