// Package mediatool shells out to ffmpeg and ffprobe for audio
// extraction, clip rendering, and media inspection.
package mediatool
