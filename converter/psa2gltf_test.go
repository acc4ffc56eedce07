package converter

import (
	"testing"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/binzume/axconv/gltfutil"
	"github.com/qmuntal/gltf"
)

// testAnimation builds a two frame sequence over the bones of
// testPSKDocument: frame 0 at the bind pose, frame 1 with the arm bent.
func testAnimation(t *testing.T, src *actorx.PSKDocument) *actorx.PSADocument {
	skeleton, err := actorx.NewSkeleton(src.Bones)
	if err != nil {
		t.Fatal("NewSkeleton: ", err)
	}
	conv := actorx.NewSpaceConverter(skeleton)

	b := actorx.NewAnimationBuilder()
	b.AddBone("Root", -1, &src.Bones[0].Rotation, &src.Bones[0].Position)
	b.AddBone("Arm", 0, &src.Bones[1].Rotation, &src.Bones[1].Position)

	bend := geom.NewEuler(0, 0, 0.5, geom.RotationOrderZXY).ToQuaternion()
	identity := geom.Quaternion{W: 1}
	zero := geom.Vector3{}

	var keys []actorx.Key
	addKey := func(bone int, rot *geom.Quaternion, loc *geom.Vector3) {
		r, l := conv.FromLocal(bone, rot, loc)
		keys = append(keys, actorx.Key{Position: *l, Rotation: *r, Time: 1.0 / 30})
	}
	// frame 0
	addKey(0, &identity, &zero)
	addKey(1, &identity, &zero)
	// frame 1
	addKey(0, &identity, &zero)
	addKey(1, bend, &zero)

	if err := b.AddSequence("Walk", "", 30, 2, keys); err != nil {
		t.Fatal("AddSequence: ", err)
	}
	doc, err := b.Build()
	if err != nil {
		t.Fatal("Build: ", err)
	}
	return doc
}

func TestAddAnimationToGlb(t *testing.T) {
	const eps = 0.000001
	src := testPSKDocument(t)
	doc, err := NewPSKToGLTFConverter(nil).Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}

	anim := testAnimation(t, src)
	warnings, err := AddAnimationToGlb(doc, anim, nil)
	if err != nil {
		t.Fatal("AddAnimationToGlb: ", err)
	}
	if len(warnings) != 0 {
		t.Error("warnings: ", warnings)
	}
	if len(doc.Animations) != 1 {
		t.Fatal("animations: ", len(doc.Animations))
	}
	a := doc.Animations[0]
	if a.Name != "Walk" {
		t.Error("name: ", a.Name)
	}
	// Only the arm leaves the bind pose, with a rotation.
	if len(a.Channels) != 1 {
		t.Fatal("channels: ", len(a.Channels))
	}
	ch := a.Channels[0]
	if ch.Target.Node == nil || *ch.Target.Node != 1 || ch.Target.Path != gltf.TRSRotation {
		t.Error("channel target: ", ch.Target)
	}
	sampler := a.Samplers[*ch.Sampler]
	if sampler.Interpolation != gltf.InterpolationLinear {
		t.Error("interpolation: ", sampler.Interpolation)
	}
	times, err := gltfutil.ReadFloats(doc, doc.Accessors[*sampler.Input])
	if err != nil {
		t.Fatal("ReadFloats: ", err)
	}
	if len(times) != 2 || times[0] != 0 || times[1] != 1.0/30 {
		t.Error("times: ", times)
	}
	rotations, err := gltfutil.ReadVec4(doc, doc.Accessors[*sampler.Output])
	if err != nil {
		t.Fatal("ReadVec4: ", err)
	}
	if len(rotations) != 2 {
		t.Fatal("rotations: ", len(rotations))
	}
	// Frame 0 is the bind pose, so it matches the node's rest rotation.
	r0 := geom.NewQuaternionFromArray(rotations[0])
	rest := geom.NewQuaternionFromArray(doc.Nodes[1].Rotation)
	if r0.Sub(rest).Len() > eps {
		t.Error("frame 0 rotation: ", rotations[0], doc.Nodes[1].Rotation)
	}
}

func TestAddAnimationToGlbSequenceFilter(t *testing.T) {
	src := testPSKDocument(t)
	doc, err := NewPSKToGLTFConverter(nil).Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	anim := testAnimation(t, src)
	warnings, err := AddAnimationToGlb(doc, anim, &PSAToGLTFOption{Sequences: []string{"Missing"}})
	if err != nil {
		t.Fatal("AddAnimationToGlb: ", err)
	}
	if len(warnings) != 1 {
		t.Error("warnings: ", warnings)
	}
	if len(doc.Animations) != 0 {
		t.Error("animations: ", len(doc.Animations))
	}
}

func TestSequenceTimes(t *testing.T) {
	seq := &actorx.SequenceInfo{FrameRate: 24, FrameCount: 3}
	times := sequenceTimes(seq, 0)
	if len(times) != 3 || times[1] != 1.0/24 {
		t.Error("stored rate: ", times)
	}
	times = sequenceTimes(seq, 60)
	if times[2] != 2.0/60 {
		t.Error("override rate: ", times)
	}
}
