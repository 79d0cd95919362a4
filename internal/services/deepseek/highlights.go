package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cliply/internal/services"
	"cliply/internal/subtitles"
)

const highlightSystemPrompt = "You are an editor who finds the most engaging moments in stream recordings. " +
	"Reply with a JSON array only, no prose. Each element must be an object with " +
	`numeric "start" and "end" fields in seconds, the quoted "text" of the moment, ` +
	`and a short "reason" explaining why it stands out.`

// Highlight is a moment the model selected from the transcript.
type Highlight struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Text   string  `json:"text"`
	Reason string  `json:"reason"`
}

// Bounds constrains accepted highlight durations in seconds.
type Bounds struct {
	MinSeconds float64
	MaxSeconds float64
}

// ExtractHighlights asks the model for highlight moments in a transcript.
// The response must be a JSON array of {start, end, text, reason} objects; models
// sometimes wrap the array in prose, so everything outside the first '['
// and last ']' is discarded before parsing. Any shape violation fails the
// whole call with ErrHighlightParse.
func (c *Client) ExtractHighlights(ctx context.Context, segments []subtitles.Segment, bounds Bounds) ([]Highlight, error) {
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "deepseek", "extract highlights", "transcript is empty", nil)
	}

	content, err := c.Complete(ctx, highlightSystemPrompt, buildTranscriptPrompt(segments, bounds))
	if err != nil {
		return nil, err
	}

	payload, err := extractJSONArray(content)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Start  *float64 `json:"start"`
		End    *float64 `json:"end"`
		Text   string   `json:"text"`
		Reason string   `json:"reason"`
	}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, services.Wrap(services.ErrHighlightParse, "deepseek", "extract highlights", "response is not a JSON array", err)
	}

	total := subtitles.TotalDuration(segments)
	highlights := make([]Highlight, 0, len(raw))
	for i, entry := range raw {
		if entry.Start == nil || entry.End == nil {
			return nil, services.Wrap(services.ErrHighlightParse, "deepseek", "extract highlights",
				fmt.Sprintf("element %d is missing start or end", i), nil)
		}
		h := Highlight{
			Start:  *entry.Start,
			End:    *entry.End,
			Text:   strings.TrimSpace(entry.Text),
			Reason: strings.TrimSpace(entry.Reason),
		}
		if err := validateHighlight(h, i, total, bounds); err != nil {
			return nil, err
		}
		highlights = append(highlights, h)
	}
	return highlights, nil
}

func validateHighlight(h Highlight, index int, total float64, bounds Bounds) error {
	fail := func(message string) error {
		return services.Wrap(services.ErrHighlightParse, "deepseek", "extract highlights",
			fmt.Sprintf("element %d %s", index, message), nil)
	}
	if h.Start < 0 {
		return fail("has a negative start")
	}
	if h.End <= h.Start {
		return fail("ends before it starts")
	}
	if h.Text == "" {
		return fail("has no text")
	}
	if total > 0 && h.End > total+1 {
		return fail(fmt.Sprintf("ends at %.1fs, past the %.1fs transcript", h.End, total))
	}
	duration := h.End - h.Start
	if bounds.MinSeconds > 0 && duration < bounds.MinSeconds {
		return fail(fmt.Sprintf("is %.1fs, shorter than the %.0fs minimum", duration, bounds.MinSeconds))
	}
	if bounds.MaxSeconds > 0 && duration > bounds.MaxSeconds {
		return fail(fmt.Sprintf("is %.1fs, longer than the %.0fs maximum", duration, bounds.MaxSeconds))
	}
	return nil
}

func buildTranscriptPrompt(segments []subtitles.Segment, bounds Bounds) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Pick the most engaging highlight moments from this transcript. ")
	if bounds.MinSeconds > 0 && bounds.MaxSeconds > 0 {
		fmt.Fprintf(&b, "Each highlight must run between %.0f and %.0f seconds. ", bounds.MinSeconds, bounds.MaxSeconds)
	}
	b.WriteString("Transcript:\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "[%.1f-%.1f] %s\n", seg.Start, seg.End, strings.TrimSpace(seg.Text))
	}
	return b.String()
}

// extractJSONArray trims prose before the first '[' and after the last ']'.
func extractJSONArray(content string) (string, error) {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end < start {
		return "", services.Wrap(services.ErrHighlightParse, "deepseek", "extract highlights", "no JSON array in response", nil)
	}
	return content[start : end+1], nil
}
