// Package adapter implements the collaborators that feed the correlation
// engine: network scanners producing device observations and presence
// feeds reporting who is home.
//
// # Sources
//
// ObservationSource produces one Observation per device seen in a cycle.
// NmapScanner is the primary source; it reports MAC, IPv4, reverse DNS
// hostname, open TCP ports and an OS-derived device type.
//
// Enricher adds evidence to observations produced by other sources.
// NeighborProbe reads the router's IPv6 neighbor table over SSH and attaches
// the IPv6 addresses of each MAC, which is where the stable interface
// suffix comes from.
//
// PresenceSource reports each person's home flag and presence transitions.
// HomeAssistant reads person entities from the Home Assistant REST API.
// Tado reads the geofencing flag of the mobile devices in a Tado home.
//
// # Registry
//
// Registry runs every enabled source for a cycle. A failing source is
// logged and skipped so one broken collaborator never blocks a cycle.
package adapter
