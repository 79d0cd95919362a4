// Package queue persists videos and their processing tasks in SQLite and
// enforces the task status state machine. All multi-writer transitions go
// through conditional updates so that concurrent workers cannot claim or
// finish the same task twice.
package queue
