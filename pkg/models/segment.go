package models

import (
	"fmt"
	"math"
)

// Segment is a time-stamped span of recognized speech
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Validate checks that the segment has usable timing
func (s Segment) Validate() error {
	if math.IsNaN(s.Start) || math.IsInf(s.Start, 0) || math.IsNaN(s.End) || math.IsInf(s.End, 0) {
		return fmt.Errorf("segment timing must be finite (start=%v end=%v)", s.Start, s.End)
	}
	if s.Start < 0 {
		return fmt.Errorf("segment start %.3f is negative", s.Start)
	}
	if s.End < s.Start {
		return fmt.Errorf("segment end %.3f is before start %.3f", s.End, s.Start)
	}
	return nil
}
