// Package subtitlegen handles subtitle_generation tasks by submitting the
// video to the caption service and recording the returned subtitles.
package subtitlegen
