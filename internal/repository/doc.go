// Package repository defines persistence for engine state and the
// suggestion journal.
//
// # State
//
// A StateStore loads and saves a complete domain.Snapshot. Saves are atomic:
// a crash mid-save leaves either the previous document or the new one, never
// a mix. Two implementations exist:
//
//   - file: a JSON document replaced by write-to-temp, fsync and rename
//   - sqlite: the same document in a single-row table, written in one transaction
//
// A missing state is not an error; Load returns an empty snapshot. A state
// that cannot be parsed is reported with ErrCorruptState alongside an empty
// snapshot so the caller can warn loudly and keep running.
//
// # Journal
//
// The SuggestionJournal keeps every emitted suggestion so operators can
// review recent ones later. Only the sqlite backend provides it.
package repository
