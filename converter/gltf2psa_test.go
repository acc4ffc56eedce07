package converter

import (
	"testing"

	"github.com/binzume/axconv/actorx"
	"github.com/qmuntal/gltf"
)

func TestGLTFToPSARoundTrip(t *testing.T) {
	const eps = 0.0001
	src := testPSKDocument(t)
	doc, err := NewPSKToGLTFConverter(nil).Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	anim := testAnimation(t, src)
	if _, err := AddAnimationToGlb(doc, anim, nil); err != nil {
		t.Fatal("AddAnimationToGlb: ", err)
	}

	conv := NewGLTFToPSAConverter(nil)
	back, err := conv.Convert(doc)
	if err != nil {
		t.Fatal("Convert back: ", err)
	}

	if len(back.Bones) != len(anim.Bones) {
		t.Fatal("bones: ", len(back.Bones), len(anim.Bones))
	}
	for i := range anim.Bones {
		want, got := &anim.Bones[i], &back.Bones[i]
		if got.Name != want.Name || got.ParentIndex != want.ParentIndex {
			t.Error("bone ", i, ": ", got.Name, got.ParentIndex)
		}
		if got.Rotation.Sub(&want.Rotation).Len() > eps {
			t.Error("bone ", i, " rotation: ", got.Rotation, want.Rotation)
		}
		if got.Position.Sub(&want.Position).Len() > eps {
			t.Error("bone ", i, " position: ", got.Position, want.Position)
		}
	}

	if len(back.Sequences) != 1 {
		t.Fatal("sequences: ", len(back.Sequences))
	}
	seq := back.Sequences[0]
	if seq.Name != "Walk" || seq.FrameCount != 2 || seq.TotalBones != 2 || seq.FirstFrame != 0 {
		t.Error("sequence: ", seq.Name, seq.FrameCount, seq.TotalBones, seq.FirstFrame)
	}
	if seq.FrameRate < 30-eps || seq.FrameRate > 30+eps {
		t.Error("frame rate: ", seq.FrameRate)
	}

	if len(back.Keys) != len(anim.Keys) {
		t.Fatal("keys: ", len(back.Keys), len(anim.Keys))
	}
	for i := range anim.Keys {
		want, got := &anim.Keys[i], &back.Keys[i]
		if got.Rotation.Sub(&want.Rotation).Len() > eps {
			t.Error("key ", i, " rotation: ", got.Rotation, want.Rotation)
		}
		if got.Position.Sub(&want.Position).Len() > eps {
			t.Error("key ", i, " position: ", got.Position, want.Position)
		}
		if got.Time-want.Time > eps || got.Time-want.Time < -eps {
			t.Error("key ", i, " time: ", got.Time, want.Time)
		}
	}
}

// A "A/B" segment yields the forward and the reversed sequence over the
// same animation.
func TestGLTFToPSASegments(t *testing.T) {
	const eps = 0.0001
	src := testPSKDocument(t)
	doc, err := NewPSKToGLTFConverter(nil).Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	anim := testAnimation(t, src)
	if _, err := AddAnimationToGlb(doc, anim, nil); err != nil {
		t.Fatal("AddAnimationToGlb: ", err)
	}

	conv := NewGLTFToPSAConverter(&GLTFToPSAOption{
		Segments: []actorx.Segment{{Name: "Walk/WalkBack", Start: 0, End: 1}},
	})
	back, err := conv.Convert(doc)
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	if len(back.Sequences) != 2 {
		t.Fatal("sequences: ", len(back.Sequences))
	}
	if back.Sequences[0].Name != "Walk" || back.Sequences[1].Name != "WalkBack" {
		t.Error("names: ", back.Sequences[0].Name, back.Sequences[1].Name)
	}
	if back.Sequences[1].FirstFrame != 2 || back.Sequences[1].FrameCount != 2 {
		t.Error("reverse range: ", back.Sequences[1].FirstFrame, back.Sequences[1].FrameCount)
	}
	// The reversed sequence starts where the forward one ends.
	forwardLast := back.Keys[3]  // frame 1, arm
	reverseFirst := back.Keys[5] // frame 0, arm
	if reverseFirst.Rotation.Sub(&forwardLast.Rotation).Len() > eps {
		t.Error("reverse rotation: ", reverseFirst.Rotation, forwardLast.Rotation)
	}
	if reverseFirst.Position.Sub(&forwardLast.Position).Len() > eps {
		t.Error("reverse position: ", reverseFirst.Position, forwardLast.Position)
	}
}

func TestGLTFToPSANoAnimations(t *testing.T) {
	src := testPSKDocument(t)
	doc, err := NewPSKToGLTFConverter(nil).Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	if _, err := NewGLTFToPSAConverter(nil).Convert(doc); err == nil {
		t.Error("document without animations accepted")
	}
}

func TestGLTFToPSANoSkin(t *testing.T) {
	doc := gltf.NewDocument()
	if _, err := NewGLTFToPSAConverter(nil).Convert(doc); err == nil {
		t.Error("document without a skin accepted")
	}
}

func TestSequenceFrames(t *testing.T) {
	cases := []struct {
		start, end int
		ratio      float64
		quota      int
		count      int
		step       float64
	}{
		{0, 30, 1, 0, 31, 1},
		{30, 0, 1, 0, 31, -1},
		{0, 30, 0.5, 0, 15, 30.0 / 14},
		{0, 1, 1, 10, 10, 1.0 / 9},
		{0, 0, 1, 0, 1, 0},
	}
	for _, c := range cases {
		count, step := sequenceFrames(c.start, c.end, c.ratio, c.quota)
		if count != c.count || step != c.step {
			t.Error("sequenceFrames ", c.start, c.end, ": ", count, step)
		}
	}
}

func TestKeyAlpha(t *testing.T) {
	times := []float32{0, 1, 3}
	cases := []struct {
		t     float32
		k     int
		alpha float32
	}{
		{-1, 0, 0},
		{0, 0, 0},
		{0.5, 0, 0.5},
		{2, 1, 0.5},
		{3, 2, 0},
		{9, 2, 0},
	}
	for _, c := range cases {
		k, alpha := keyAlpha(times, c.t)
		if k != c.k || alpha != c.alpha {
			t.Error("keyAlpha ", c.t, ": ", k, alpha)
		}
	}
}
