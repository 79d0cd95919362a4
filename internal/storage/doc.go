// Package storage persists pipeline artifacts (extracted audio, subtitle
// documents, rendered clips) on the local filesystem and maps them to the
// URLs handed back to callers.
package storage
