// Package workflow coordinates queue processing: the manager claims
// batches of pending tasks, fans them out to the registered handlers,
// keeps heartbeats alive while handlers run, and reclaims tasks whose
// workers went silent.
package workflow
