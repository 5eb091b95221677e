// Package service coordinates learning cycles for macsleuth.
//
// This package sits between the collaborators in adapter, the correlation
// engine and the repository layer. It owns the engine state, serializes
// cycles and persists the result.
//
// # Services
//
// LearningService runs one cycle at a time: gather observations and presence
// from the registered sources, run the engine, save state, journal any new
// suggestions and publish events.
//
// Scheduler triggers LearningService cycles on a cron schedule and skips a
// tick while the previous cycle is still running.
//
// # Event System
//
// Services publish events via EventBus. The CLI subscribes to print each
// suggestion as it is emitted; nothing in the engine depends on a subscriber
// being present.
package service
