package subtitles

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatSRT renders segments as a SubRip document. Cues are numbered from
// one in the order given; callers that need chronological output should
// Sort first.
func FormatSRT(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d\n", i+1)
		fmt.Fprintf(&b, "%s --> %s\n", formatTimecode(seg.Start), formatTimecode(seg.End))
		b.WriteString(strings.TrimSpace(seg.Text))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseSRT reads a SubRip document back into segments. Cue indexes are
// ignored; blank-line separated blocks of timecode plus text are enough.
// Multi-line cue text is joined with newlines.
func ParseSRT(input string) ([]Segment, error) {
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var segments []Segment
	var current *Segment
	var textLines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(textLines, "\n")
		segments = append(segments, *current)
		current = nil
		textLines = nil
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			flush()
		case strings.Contains(trimmed, "-->"):
			flush()
			start, end, err := parseTimecodeLine(trimmed)
			if err != nil {
				return nil, err
			}
			current = &Segment{Start: start, End: end}
		case current != nil:
			textLines = append(textLines, trimmed)
		default:
			// cue index or stray text before the first timecode line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	flush()

	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid srt cue: %w", err)
		}
	}
	return segments, nil
}

func parseTimecodeLine(line string) (float64, float64, error) {
	parts := strings.SplitN(line, "-->", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed timecode line %q", line)
	}
	start, err := parseTimecode(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	end, err := parseTimecode(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	return start, end, nil
}

// formatTimecode renders seconds as HH:MM:SS,mmm.
func formatTimecode(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	millis := int64(math.Round(seconds * 1000))
	hours := millis / 3_600_000
	millis -= hours * 3_600_000
	minutes := millis / 60_000
	millis -= minutes * 60_000
	secs := millis / 1000
	millis -= secs * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// parseTimecode accepts HH:MM:SS,mmm and the dot variant some tools emit.
func parseTimecode(value string) (float64, error) {
	normalized := strings.ReplaceAll(value, ".", ",")
	var timePart, msPart string
	if idx := strings.LastIndex(normalized, ","); idx >= 0 {
		timePart = normalized[:idx]
		msPart = normalized[idx+1:]
	} else {
		timePart = normalized
		msPart = "0"
	}

	fields := strings.Split(timePart, ":")
	if len(fields) != 3 {
		return 0, fmt.Errorf("malformed timecode %q", value)
	}
	hours, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}
	minutes, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}
	seconds, err := strconv.Atoi(fields[2])
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}
	millis, err := strconv.Atoi(msPart)
	if err != nil {
		return 0, fmt.Errorf("malformed timecode %q: %w", value, err)
	}

	total := float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(millis)/1000
	return total, nil
}
