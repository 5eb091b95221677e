// Package handler implements the HTTP API served by `macsleuth run`.
//
// The API is read-mostly: it exposes the suggestion journal, the ledger,
// accumulated fingerprints and the persisted state, and lets an operator
// trigger a cycle or reset ledger entries. It never edits the people file.
//
// # Endpoints
//
//	GET    /api/health                        service and state counters
//	POST   /api/cycle                         run one learning cycle now
//	GET    /api/suggestions?hours=24          journaled suggestions
//	GET    /api/suggestions?format=patch      people file snippet (YAML)
//	GET    /api/ledger                        suggested pairs
//	DELETE /api/ledger/{person}               reset all pairs of a person
//	DELETE /api/ledger/{person}/{identifier}  reset one pair
//	GET    /api/fingerprints/{id}             evidence profile of a device
//	GET    /api/state?format=json             full state document
//	GET    /events                            suggestion stream (SSE)
//
// Errors are returned as JSON with {error, details}.
package handler
