package subtitle

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

var (
	// ErrNoSegments is returned when there is nothing to serialize
	ErrNoSegments = errors.New("no segments to encode")
	// ErrInvalidSegment is returned for segments with unusable timing
	ErrInvalidSegment = errors.New("invalid segment")
)

// timestampSlackMillis is the float error tolerated before truncation
const timestampSlackMillis = 1e-6

// timingSeparator separates the start and end timestamp of a cue
const timingSeparator = " --> "

// FormatTimestamp formats seconds as HH:MM:SS,mmm. Anything below one
// millisecond is truncated. A nanosecond of slack absorbs binary float noise
// (59.999 stored as 59.99899...) without carrying real sub-millisecond
// values into the next millisecond.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		seconds = 0
	}

	totalMillis := int64(math.Floor(seconds*1000 + timestampSlackMillis))

	millis := totalMillis % 1000
	totalSeconds := totalMillis / 1000

	minutes := totalSeconds / 60
	secs := totalSeconds % 60
	hours := minutes / 60
	minutes = minutes % 60

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// ParseTimestamp parses an HH:MM:SS,mmm timestamp back into seconds.
// A period is accepted in place of the comma.
func ParseTimestamp(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}

	value = strings.ReplaceAll(value, ".", ",")
	timeParts := strings.Split(value, ",")
	if len(timeParts) != 2 || len(timeParts[1]) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}

	hms := strings.Split(timeParts[0], ":")
	if len(hms) != 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}

	hours, errH := strconv.Atoi(hms[0])
	minutes, errM := strconv.Atoi(hms[1])
	secs, errS := strconv.Atoi(hms[2])
	millis, errMS := strconv.Atoi(timeParts[1])
	if errH != nil || errM != nil || errS != nil || errMS != nil {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if hours < 0 || minutes < 0 || minutes > 59 || secs < 0 || secs > 59 || millis < 0 {
		return 0, fmt.Errorf("timestamp out of range %q", value)
	}

	totalMillis := int64(hours)*3600000 + int64(minutes)*60000 + int64(secs)*1000 + int64(millis)
	return float64(totalMillis) / 1000, nil
}

// Normalize validates every segment and returns a copy sorted by start
// time. The sort is stable so segments sharing a start keep their order.
func Normalize(segments []models.Segment) ([]models.Segment, error) {
	for i, seg := range segments {
		if err := seg.Validate(); err != nil {
			return nil, fmt.Errorf("%w: segment %d: %v", ErrInvalidSegment, i+1, err)
		}
	}

	ordered := make([]models.Segment, len(segments))
	copy(ordered, segments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	return ordered, nil
}

// Encode serializes segments into SRT text. Cue indices are derived from
// position after ordering, starting at 1.
func Encode(segments []models.Segment) (string, error) {
	if len(segments) == 0 {
		return "", ErrNoSegments
	}

	ordered, err := Normalize(segments)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i, seg := range ordered {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteByte('\n')
		b.WriteString(FormatTimestamp(seg.Start))
		b.WriteString(timingSeparator)
		b.WriteString(FormatTimestamp(seg.End))
		b.WriteByte('\n')
		b.WriteString(cleanText(seg.Text))
		b.WriteString("\n\n")
	}

	return b.String(), nil
}

// Decode parses SRT text into segments
func Decode(data string) ([]models.Segment, error) {
	data = strings.TrimPrefix(data, "\ufeff")
	data = strings.ReplaceAll(data, "\r\n", "\n")
	lines := strings.Split(data, "\n")

	segments := make([]models.Segment, 0)
	i := 0
	for i < len(lines) {
		if strings.TrimSpace(lines[i]) == "" {
			i++
			continue
		}

		index, err := strconv.Atoi(strings.TrimSpace(lines[i]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid cue index %q", i+1, lines[i])
		}
		if index != len(segments)+1 {
			return nil, fmt.Errorf("line %d: cue index %d out of sequence, want %d", i+1, index, len(segments)+1)
		}
		i++

		if i >= len(lines) {
			return nil, fmt.Errorf("cue %d: missing timing line", index)
		}
		start, end, err := parseTiming(lines[i])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		i++

		var text []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			text = append(text, strings.TrimSpace(lines[i]))
			i++
		}

		segments = append(segments, models.Segment{
			Start: start,
			End:   end,
			Text:  strings.Join(text, "\n"),
		})
	}

	return segments, nil
}

// WriteFile encodes segments and writes them to path. The file is written
// to a temporary sibling first and renamed into place, so a reader never
// sees a partial track. Nothing is written for an empty track.
func WriteFile(path string, segments []models.Segment) error {
	content, err := Encode(segments)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create subtitle directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp subtitle file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write subtitle file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close subtitle file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set subtitle file mode: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to move subtitle file into place: %w", err)
	}

	return nil
}

// ReadFile reads and decodes an SRT file
func ReadFile(path string) ([]models.Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read srt: %w", err)
	}
	return Decode(string(data))
}

func parseTiming(line string) (float64, float64, error) {
	parts := strings.Split(line, "-->")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}

	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return 0, 0, err
	}

	// Cue settings may follow the end timestamp.
	endFields := strings.Fields(parts[1])
	if len(endFields) == 0 {
		return 0, 0, fmt.Errorf("invalid timing line %q", line)
	}
	end, err := ParseTimestamp(endFields[0])
	if err != nil {
		return 0, 0, err
	}

	return start, end, nil
}

// cleanText trims the cue text and drops blank interior lines, which would
// otherwise terminate the cue early.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(strings.TrimSpace(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}
