// Package whisper transcribes audio files through an OpenAI-compatible
// speech-to-text endpoint.
package whisper
