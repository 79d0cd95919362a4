// Package deepseek extracts highlight moments from transcripts using the
// DeepSeek chat completion API.
package deepseek
