package actorx

import (
	"reflect"
	"testing"
)

func TestSequencesFromSegments(t *testing.T) {
	segments := []Segment{
		{Name: "Run/RunBack", Start: 0, End: 30},
		{Name: "#setup", Start: 40, End: 50},
		{Name: "Walk", Start: 60, End: 80, Muted: true},
	}
	got := SequencesFromSegments(segments)
	want := []Sequence{
		{Name: "Run", Start: 0, End: 30},
		{Name: "RunBack", Start: 30, End: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSplitReverseNames(t *testing.T) {
	// The split happens at the last separator, and only when both
	// halves are non-empty.
	got := SequencesFromSegments([]Segment{
		{Name: "A/B/C", Start: 0, End: 10},
		{Name: "/x", Start: 0, End: 10},
		{Name: "Walk/", Start: 0, End: 10},
	})
	want := []Sequence{
		{Name: "A/B", Start: 0, End: 10},
		{Name: "C", Start: 10, End: 0},
		{Name: "/x", Start: 0, End: 10},
		{Name: "Walk/", Start: 0, End: 10},
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSequencesFromSegmentMarkers(t *testing.T) {
	segment := Segment{Name: "clip", Start: 0, End: 100}
	markers := []Marker{
		{Name: "Jump", Frame: 10},
		{Name: "#hold", Frame: 40},
		{Name: "Roll/RollBack", Frame: 50},
	}
	got := SequencesFromSegmentMarkers(segment, markers)
	want := []Sequence{
		{Name: "Jump", Start: 10, End: 40},
		{Name: "Roll", Start: 50, End: 100},
		{Name: "RollBack", Start: 100, End: 50},
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSequencesFromMarkers(t *testing.T) {
	// Unsorted on purpose.
	markers := []Marker{
		{Name: "B", Frame: 30},
		{Name: "C", Frame: 60},
		{Name: "A", Frame: 0},
	}
	segments := []Segment{{Name: "track", Start: 0, End: 90}}
	got := SequencesFromMarkers(markers, segments)
	want := []Sequence{
		{Name: "A", Start: 0, End: 30},
		{Name: "B", Start: 30, End: 60},
		{Name: "C", Start: 60, End: 90},
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSequencesFromMarkersNoSegments(t *testing.T) {
	markers := []Marker{{Name: "A", Frame: 5}, {Name: "B", Frame: 30}}
	got := SequencesFromMarkers(markers, nil)
	// A has no overlapping segment and degenerates to a single frame,
	// B has nothing to run to and is dropped.
	want := []Sequence{{Name: "A", Start: 5, End: 5}}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSequencesFromMarkersTightened(t *testing.T) {
	markers := []Marker{{Name: "A", Frame: 10}, {Name: "B", Frame: 100}}
	segments := []Segment{{Name: "short", Start: 20, End: 50}}
	got := SequencesFromMarkers(markers, segments)
	want := []Sequence{{Name: "A", Start: 20, End: 50}}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestSequencesFromMarkersReserved(t *testing.T) {
	markers := []Marker{
		{Name: "A", Frame: 0},
		{Name: "#cut", Frame: 30},
		{Name: "B", Frame: 60},
	}
	segments := []Segment{{Name: "track", Start: 0, End: 90}}
	got := SequencesFromMarkers(markers, segments)
	// #cut emits nothing but still bounds A.
	want := []Sequence{
		{Name: "A", Start: 0, End: 30},
		{Name: "B", Start: 60, End: 90},
	}
	if !reflect.DeepEqual(got, want) {
		t.Error("sequences: ", got, want)
	}
}

func TestOverlappingSegments(t *testing.T) {
	segments := []Segment{
		{Name: "spanning", Start: 0, End: 90},
		{Name: "startsIn", Start: 30, End: 50},
		{Name: "endsIn", Start: 55, End: 60},
		{Name: "after", Start: 60, End: 70},
		{Name: "before", Start: 0, End: 30},
		{Name: "muted", Start: 0, End: 90, Muted: true},
	}
	got := OverlappingSegments(segments, 30, 60)
	if len(got) != 3 || got[0].Name != "spanning" || got[1].Name != "startsIn" || got[2].Name != "endsIn" {
		t.Error("segments: ", got)
	}
}

func TestResolveFrameRate(t *testing.T) {
	segments := []Segment{{Rate: 30}, {Rate: 0}, {Rate: 25}}
	if got := ResolveFrameRate(RateProject, 24, 60, segments); got != 24 {
		t.Error("project: ", got)
	}
	if got := ResolveFrameRate(RateCustom, 24, 60, segments); got != 60 {
		t.Error("custom: ", got)
	}
	if got := ResolveFrameRate(RateSegmentMin, 24, 60, segments); got != 25 {
		t.Error("segment min: ", got)
	}
	if got := ResolveFrameRate(RateSegmentMin, 24, 60, []Segment{{Rate: 0}}); got != 24 {
		t.Error("segment min fallback: ", got)
	}
}
