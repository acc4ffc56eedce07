package actorx

import "github.com/binzume/axconv/geom"

// Sample is one pose for one bone at one frame.
type Sample struct {
	BoneIndex int
	Frame     int
	Rotation  geom.Quaternion
	Location  geom.Vector3
}

// SampleSource yields samples one at a time. The second return value
// reports whether a sample was produced.
type SampleSource interface {
	NextSample() (Sample, bool)
}

// SampleSink receives converted samples.
type SampleSink interface {
	EmitSample(boneIndex, frame int, rotation *geom.Quaternion, location *geom.Vector3)
}

type importBone struct {
	parent       int
	origRotation geom.Quaternion
	origLocation geom.Vector3
	postRotation geom.Quaternion
}

// SpaceConverter converts pose samples between the stored file
// convention and the parent relative local space of each bone. Root
// and child samples carry mirrored rotation conventions in the file,
// so the root is composed differently in both directions.
type SpaceConverter struct {
	bones []importBone
}

func NewSpaceConverter(skeleton *Skeleton) *SpaceConverter {
	bones := make([]importBone, len(skeleton.Nodes))
	for i, node := range skeleton.Nodes {
		orig := node.Rotation
		if node.Parent < 0 {
			orig = *node.Rotation.Inverse()
		}
		bones[i] = importBone{
			parent:       node.Parent,
			origRotation: orig,
			origLocation: node.Position,
			postRotation: *orig.Inverse(),
		}
	}
	return &SpaceConverter{bones: bones}
}

func (c *SpaceConverter) BoneCount() int {
	return len(c.bones)
}

// OrigRotation returns the bind pose rotation used for a bone. The
// root keeps the conjugate of its stored rotation.
func (c *SpaceConverter) OrigRotation(boneIndex int) *geom.Quaternion {
	r := c.bones[boneIndex].origRotation
	return &r
}

func (c *SpaceConverter) OrigLocation(boneIndex int) *geom.Vector3 {
	l := c.bones[boneIndex].origLocation
	return &l
}

// PostRotation returns the orientation correction term of a bone, the
// conjugate of its bind pose rotation.
func (c *SpaceConverter) PostRotation(boneIndex int) *geom.Quaternion {
	r := c.bones[boneIndex].postRotation
	return &r
}

// ToLocal converts a file space sample of a bone to its local space.
// A bone posed at its bind pose yields the identity rotation and zero
// location.
func (c *SpaceConverter) ToLocal(boneIndex int, rotation *geom.Quaternion, location *geom.Vector3) (*geom.Quaternion, *geom.Vector3) {
	b := &c.bones[boneIndex]
	base := b.origRotation.Mul(&b.postRotation)
	var delta *geom.Quaternion
	if b.parent < 0 {
		delta = rotation.Inverse().Mul(&b.postRotation)
	} else {
		delta = rotation.Mul(&b.postRotation)
	}
	localRotation := delta.Inverse().Mul(base)
	localLocation := b.postRotation.Inverse().ApplyTo(location.Sub(&b.origLocation))
	return localRotation, localLocation
}

// FromLocal is the inverse of ToLocal.
func (c *SpaceConverter) FromLocal(boneIndex int, rotation *geom.Quaternion, location *geom.Vector3) (*geom.Quaternion, *geom.Vector3) {
	b := &c.bones[boneIndex]
	base := b.origRotation.Mul(&b.postRotation)
	delta := base.Mul(rotation.Inverse())
	var keyRotation *geom.Quaternion
	if b.parent < 0 {
		keyRotation = b.postRotation.Mul(delta.Inverse())
	} else {
		keyRotation = delta.Mul(b.postRotation.Inverse())
	}
	keyLocation := b.origLocation.Add(b.postRotation.ApplyTo(location))
	return keyRotation, keyLocation
}

// Convert drains src, which must yield file space samples, and emits
// each one converted to local space. Samples are independent, order
// does not matter.
func (c *SpaceConverter) Convert(src SampleSource, sink SampleSink) {
	for {
		s, ok := src.NextSample()
		if !ok {
			return
		}
		r, l := c.ToLocal(s.BoneIndex, &s.Rotation, &s.Location)
		sink.EmitSample(s.BoneIndex, s.Frame, r, l)
	}
}

// CollectKeys drains src, which must yield local space samples in
// frame major order, and returns file space keys in the order
// received. time is stored on every key, exporters keep the frame
// period there.
func (c *SpaceConverter) CollectKeys(src SampleSource, time float32) []Key {
	var keys []Key
	for {
		s, ok := src.NextSample()
		if !ok {
			return keys
		}
		r, l := c.FromLocal(s.BoneIndex, &s.Rotation, &s.Location)
		keys = append(keys, Key{Position: *l, Rotation: *r, Time: time})
	}
}

// SequenceSource yields the keys of one sequence frame by frame, all
// bones of a frame before the next frame.
type SequenceSource struct {
	keys  []Key
	bones int
	next  int
}

// NewSequenceSource returns a source over the key block of seq.
// Returns nil when the sequence range does not fit the document.
func NewSequenceSource(doc *PSADocument, seq *SequenceInfo) *SequenceSource {
	keys := doc.SequenceKeys(seq)
	if keys == nil || len(doc.Bones) == 0 {
		return nil
	}
	return &SequenceSource{keys: keys, bones: len(doc.Bones)}
}

func (s *SequenceSource) NextSample() (Sample, bool) {
	if s.next >= len(s.keys) {
		return Sample{}, false
	}
	key := &s.keys[s.next]
	sample := Sample{
		BoneIndex: s.next % s.bones,
		Frame:     s.next / s.bones,
		Rotation:  key.Rotation,
		Location:  key.Position,
	}
	s.next++
	return sample, true
}
