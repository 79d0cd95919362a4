// Package highlight extracts highlight moments from a video's transcript
// and records them for clip rendering.
package highlight
