// Package domain defines the core domain types for the macsleuth device correlation system.
//
// This package contains the entities and value objects shared by the correlation
// engine, the persistence layer and the adapters that feed the engine.
//
// # Core Types
//
// Observation is a single sighting of a device on the network as reported by a
// scanner: identifier (MAC), IP, hostname, IPv6 addresses, open ports and an
// OS/device-type guess.
//
// Fingerprint is the evidence accumulated for one identifier across many
// observations. Its set-valued fields only ever grow during normal updates.
//
// PersonIdentity maps a person to the identifiers currently recognized as
// theirs. It is supplied by the operator and never written by the engine.
//
// PresenceEvent records a home/away transition reported by an external
// presence feed.
//
// Suggestion proposes that an unknown identifier belongs to a person. It is
// never applied automatically.
//
// # Identifiers
//
// NormalizeMAC converts MAC-shaped strings to a canonical upper-case, colon
// separated form so that identifiers from different sources compare equal.
// IPv6Suffix extracts the interface-identifier half of an IPv6 address, which
// survives prefix renumbering and often survives MAC rotation.
//
// # Design Principles
//
// - No database or external dependencies
// - Pure domain logic without infrastructure concerns
// - Sets stored as sorted, de-duplicated slices for deterministic output
package domain
