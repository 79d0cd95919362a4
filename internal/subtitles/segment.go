package subtitles

import (
	"fmt"
	"sort"
	"strings"
)

// Segment is a single timed caption. Start and End are offsets in seconds
// from the beginning of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Validate reports whether the segment has usable timing and text.
func (s Segment) Validate() error {
	if s.Start < 0 {
		return fmt.Errorf("segment start %.3f is negative", s.Start)
	}
	if s.End < s.Start {
		return fmt.Errorf("segment end %.3f precedes start %.3f", s.End, s.Start)
	}
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("segment at %.3f has empty text", s.Start)
	}
	return nil
}

// Sort orders segments by start time, preserving the relative order of
// segments that share a start.
func Sort(segments []Segment) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})
}

// TotalDuration returns the end offset of the last segment, or zero for an
// empty transcript.
func TotalDuration(segments []Segment) float64 {
	var max float64
	for _, seg := range segments {
		if seg.End > max {
			max = seg.End
		}
	}
	return max
}
