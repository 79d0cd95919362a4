// Package transcription handles transcription tasks: extracted audio is
// sent to the speech-to-text service and the timed transcript is stored
// as the video's subtitles.
package transcription
