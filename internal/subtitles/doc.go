// Package subtitles models timed transcript segments and converts them
// to and from the SubRip (SRT) text format.
package subtitles
