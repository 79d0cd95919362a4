// Package daemon coordinates the background task-processing runtime and
// enforces single-instance execution through a lock file. Run wires the
// queue store, artifact storage, and stage handlers together and blocks
// until the process receives an interrupt.
package daemon
