package actorx

import (
	"sort"
	"strings"
)

// ReservedPrefix marks segments and markers excluded from sequence
// generation.
const ReservedPrefix = "#"

// Segment is an authored animation range on the host timeline. Rate is
// the authored sample rate metadata, zero when absent.
type Segment struct {
	Name  string
	Start float64
	End   float64
	Rate  float64
	Muted bool
}

// Marker is a named position on the host timeline.
type Marker struct {
	Name  string
	Frame int
}

// Sequence is a named frame range to export. End < Start encodes
// reverse playback of the same range.
type Sequence struct {
	Name  string
	Start int
	End   int
}

// splitReverseName splits "A/B" at the last separator with both halves
// non-empty. The second half names the reversed playback of the range.
func splitReverseName(name string) (string, string, bool) {
	i := strings.LastIndex(name, "/")
	if i <= 0 || i >= len(name)-1 {
		return name, "", false
	}
	return name[:i], name[i+1:], true
}

func appendSequence(dst []Sequence, name string, start, end int) []Sequence {
	if forward, backward, ok := splitReverseName(name); ok {
		return append(dst,
			Sequence{Name: forward, Start: start, End: end},
			Sequence{Name: backward, Start: end, End: start})
	}
	return append(dst, Sequence{Name: name, Start: start, End: end})
}

// SequencesFromSegments derives one sequence per segment, or two when
// the name carries the forward/reverse syntax. Muted segments and
// names with the reserved prefix are skipped.
func SequencesFromSegments(segments []Segment) []Sequence {
	var dst []Sequence
	for _, s := range segments {
		if s.Muted || strings.HasPrefix(s.Name, ReservedPrefix) {
			continue
		}
		dst = appendSequence(dst, s.Name, int(s.Start), int(s.End))
	}
	return dst
}

// SequencesFromSegmentMarkers derives sequences from markers placed
// inside a single segment. Each marker runs until the next marker, the
// last one runs to the segment end. Markers with the reserved prefix
// emit nothing but still bound their predecessor.
func SequencesFromSegmentMarkers(segment Segment, markers []Marker) []Sequence {
	sorted := sortedMarkers(markers)
	var dst []Sequence
	for i, m := range sorted {
		if strings.HasPrefix(m.Name, ReservedPrefix) {
			continue
		}
		end := int(segment.End)
		if i+1 < len(sorted) {
			end = sorted[i+1].Frame
		}
		dst = appendSequence(dst, m.Name, m.Frame, end)
	}
	return dst
}

// SequencesFromMarkers derives one sequence per timeline marker. A
// marker runs to the next marker, tightened to the bounds of the
// segments overlapping that window; with no overlapping segment it
// degenerates to a single frame. The last marker runs to the greatest
// end of all non-muted segments. Markers whose range ends up inverted
// are dropped.
func SequencesFromMarkers(markers []Marker, segments []Segment) []Sequence {
	sorted := sortedMarkers(markers)
	var dst []Sequence
	for i, m := range sorted {
		start := float64(m.Frame)
		end := 0.0
		if i+1 < len(sorted) {
			end = float64(sorted[i+1].Frame)
			if overlapping := OverlappingSegments(segments, start, end); len(overlapping) > 0 {
				end = minFloat(end, maxSegmentEnd(overlapping))
				start = maxFloat(start, minSegmentStart(overlapping))
			} else {
				end = start
			}
		} else {
			for _, s := range segments {
				if !s.Muted && s.End > end {
					end = s.End
				}
			}
		}
		if start > end {
			continue
		}
		if strings.HasPrefix(m.Name, ReservedPrefix) {
			continue
		}
		dst = append(dst, Sequence{Name: m.Name, Start: int(start), End: int(end)})
	}
	return dst
}

func sortedMarkers(markers []Marker) []Marker {
	sorted := append([]Marker(nil), markers...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Frame < sorted[j].Frame })
	return sorted
}

// OverlappingSegments returns the non-muted segments overlapping
// [min, max]. A segment spanning the whole window counts, as does one
// starting in [min, max) or ending in (min, max].
func OverlappingSegments(segments []Segment, min, max float64) []Segment {
	var dst []Segment
	for _, s := range segments {
		if s.Muted {
			continue
		}
		if (s.Start < min && s.End > max) ||
			(min <= s.Start && s.Start < max) ||
			(min < s.End && s.End <= max) {
			dst = append(dst, s)
		}
	}
	return dst
}

func minSegmentStart(segments []Segment) float64 {
	v := segments[0].Start
	for _, s := range segments[1:] {
		if s.Start < v {
			v = s.Start
		}
	}
	return v
}

func maxSegmentEnd(segments []Segment) float64 {
	v := segments[0].End
	for _, s := range segments[1:] {
		if s.End > v {
			v = s.End
		}
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// RateSource selects how ResolveFrameRate picks a sample rate.
type RateSource int

const (
	// RateProject uses the project wide rate.
	RateProject RateSource = iota
	// RateCustom uses an explicit override value.
	RateCustom
	// RateSegmentMin uses the smallest authored rate of the
	// contributing segments, falling back to the project rate.
	RateSegmentMin
)

// ResolveFrameRate picks the sample rate for a sequence. segments are
// the segments contributing to the sequence's range.
func ResolveFrameRate(source RateSource, projectRate, customRate float64, segments []Segment) float64 {
	switch source {
	case RateCustom:
		return customRate
	case RateSegmentMin:
		rate := 0.0
		for _, s := range segments {
			if s.Rate > 0 && (rate == 0 || s.Rate < rate) {
				rate = s.Rate
			}
		}
		if rate > 0 {
			return rate
		}
	}
	return projectRate
}
