package converter

import (
	"fmt"
	"math"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

type PSAToGLTFOption struct {
	Scale      float32 // Default: 0.01, must match the mesh scale
	FrameRate  float32 // 0: use each sequence's stored rate
	ExactNames bool
	Sequences  []string // empty: all sequences
}

// nodePose accumulates the node space track of one bone.
type nodePose struct {
	rotations    [][4]float32
	translations [][3]float32
	rotated      bool
	translated   bool
}

// nodePoseSink receives local space samples and converts them to glTF
// node transforms. Keys arrive frame major, so per bone tracks stay in
// frame order. Adjacent quaternions are kept on the same hemisphere for
// the sake of linear interpolation.
type nodePoseSink struct {
	conv  *actorx.SpaceConverter
	scale float32
	poses []nodePose
}

func newNodePoseSink(conv *actorx.SpaceConverter, scale float32) *nodePoseSink {
	return &nodePoseSink{conv: conv, scale: scale, poses: make([]nodePose, conv.BoneCount())}
}

func (s *nodePoseSink) EmitSample(boneIndex, frame int, rotation *geom.Quaternion, location *geom.Vector3) {
	const eps = 0.000001
	pose := &s.poses[boneIndex]
	if math.Abs(float64(rotation.X))+math.Abs(float64(rotation.Y))+math.Abs(float64(rotation.Z)) > eps {
		pose.rotated = true
	}
	if location.LenSqr() > eps*eps {
		pose.translated = true
	}

	post := s.conv.PostRotation(boneIndex)
	r := post.Mul(rotation).Normalize()
	if n := len(pose.rotations); n > 0 {
		prev := pose.rotations[n-1]
		if prev[0]*r.X+prev[1]*r.Y+prev[2]*r.Z+prev[3]*r.W < 0 {
			r = &geom.Quaternion{X: -r.X, Y: -r.Y, Z: -r.Z, W: -r.W}
		}
	}
	l := s.conv.OrigLocation(boneIndex).Add(post.ApplyTo(location)).Scale(s.scale)
	pose.rotations = append(pose.rotations, [4]float32{r.X, r.Y, r.Z, r.W})
	pose.translations = append(pose.translations, [3]float32{l.X, l.Y, l.Z})
}

func sequenceTimes(seq *actorx.SequenceInfo, rate float32) []float32 {
	if rate == 0 {
		rate = seq.FrameRate
	}
	if rate == 0 {
		rate = 30
	}
	keys := make([]float32, int(seq.FrameCount))
	for f := range keys {
		keys[f] = float32(f) / rate
	}
	return keys
}

func addSequenceChannels(doc *gltf.Document, a *gltf.Animation, sink *nodePoseSink, keysAcc uint32, nodes []int) {
	for i := range sink.poses {
		pose := &sink.poses[i]
		if nodes[i] < 0 {
			continue
		}
		n := uint32(nodes[i])
		if pose.rotated {
			samplesAcc := modeler.WriteTangent(doc, pose.rotations)
			a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
				Input:         gltf.Index(keysAcc),
				Output:        gltf.Index(samplesAcc),
				Interpolation: gltf.InterpolationLinear,
			})
			a.Channels = append(a.Channels, &gltf.Channel{
				Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
				Target: gltf.ChannelTarget{
					Node: gltf.Index(n),
					Path: gltf.TRSRotation,
				},
			})
		}
		if pose.translated {
			samplesAcc := modeler.WritePosition(doc, pose.translations)
			a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
				Input:         gltf.Index(keysAcc),
				Output:        gltf.Index(samplesAcc),
				Interpolation: gltf.InterpolationLinear,
			})
			a.Channels = append(a.Channels, &gltf.Channel{
				Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
				Target: gltf.ChannelTarget{
					Node: gltf.Index(n),
					Path: gltf.TRSTranslation,
				},
			})
		}
	}
}

func selectSequences(anim *actorx.PSADocument, names []string) ([]*actorx.SequenceInfo, []string) {
	if len(names) == 0 {
		seqs := make([]*actorx.SequenceInfo, len(anim.Sequences))
		for i := range anim.Sequences {
			seqs[i] = &anim.Sequences[i]
		}
		return seqs, nil
	}
	var seqs []*actorx.SequenceInfo
	var warnings []string
	for _, name := range names {
		found := false
		for i := range anim.Sequences {
			if anim.Sequences[i].Name == name {
				seqs = append(seqs, &anim.Sequences[i])
				found = true
				break
			}
		}
		if !found {
			warnings = append(warnings, fmt.Sprintf("sequence not found: %s", name))
		}
	}
	return seqs, warnings
}

// AddAnimationToGlb appends one glTF animation per psa sequence, with
// channels for the nodes whose names match the psa bones. Channels of
// bones that never leave the bind pose are omitted. Returned warnings
// report unmapped bones and skipped sequences.
func AddAnimationToGlb(doc *gltf.Document, anim *actorx.PSADocument, options *PSAToGLTFOption) ([]string, error) {
	if options == nil {
		options = &PSAToGLTFOption{}
	}
	scale := options.Scale
	if scale == 0 {
		scale = 0.01
	}

	skeleton, err := actorx.NewSkeleton(anim.Bones)
	if err != nil {
		return nil, err
	}
	conv := actorx.NewSpaceConverter(skeleton)

	nodeNames := make([]string, len(doc.Nodes))
	for i, n := range doc.Nodes {
		nodeNames[i] = n.Name
	}
	mode := actorx.MatchCaseInsensitive
	if options.ExactNames {
		mode = actorx.MatchExact
	}
	mapping := actorx.MapBones(anim.Bones, nodeNames, mode)
	warnings := mapping.Warnings()

	seqs, w := selectSequences(anim, options.Sequences)
	warnings = append(warnings, w...)

	for _, seq := range seqs {
		src := actorx.NewSequenceSource(anim, seq)
		if src == nil {
			warnings = append(warnings, fmt.Sprintf("sequence %s: no keys", seq.Name))
			continue
		}
		sink := newNodePoseSink(conv, scale)
		conv.Convert(src, sink)

		a := gltf.Animation{Name: seq.Name}
		keysAcc := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, sequenceTimes(seq, options.FrameRate))
		addSequenceChannels(doc, &a, sink, keysAcc, mapping.TargetIndexes)
		if len(a.Channels) > 0 {
			doc.Animations = append(doc.Animations, &a)
		} else {
			warnings = append(warnings, fmt.Sprintf("sequence %s: no animated bones on the target", seq.Name))
		}
	}
	return warnings, nil
}
