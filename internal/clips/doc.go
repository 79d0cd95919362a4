// Package clips renders highlight excerpts into standalone video files
// and records their metadata against the source video.
package clips
