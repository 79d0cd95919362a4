// Package captioner talks to the asynchronous caption service: subtitle
// jobs are submitted with a media URL, then polled until ready or the
// attempt budget runs out.
package captioner
