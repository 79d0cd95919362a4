// Package audioextract handles audio_extraction tasks: the video's audio
// track is pulled into an MP3 artifact, or the already-extracted capture
// upload is relocated into the media store when ffmpeg is unavailable.
package audioextract
