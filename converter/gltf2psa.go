package converter

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/binzume/axconv/gltfutil"
	"github.com/qmuntal/gltf"
)

type GLTFToPSAOption struct {
	Scale       float32 // Default: 100, must match the mesh scale
	RateSource  actorx.RateSource
	ProjectRate float64 // Default: 30. Maps timeline frames to seconds.
	CustomRate  float64

	// CompressionRatio thins the sampled frames, KeyQuota keeps a
	// minimum number of them regardless.
	CompressionRatio float64 // Default: 1
	KeyQuota         int

	// RootMotion samples the root bone's node transform. Off, the root
	// stays at the bind pose.
	RootMotion bool

	// Segments and Markers carve sequences out of the first animation's
	// timeline. When both are empty, every animation becomes one
	// sequence.
	Segments []actorx.Segment
	Markers  []actorx.Marker
}

type gltfToPsa struct {
	*GLTFToPSAOption
	Warnings []string
}

func NewGLTFToPSAConverter(options *GLTFToPSAOption) *gltfToPsa {
	if options == nil {
		options = &GLTFToPSAOption{}
	}
	if options.Scale == 0 {
		options.Scale = 100
	}
	if options.ProjectRate == 0 {
		options.ProjectRate = 30
	}
	if options.CompressionRatio == 0 {
		options.CompressionRatio = 1
	}
	return &gltfToPsa{GLTFToPSAOption: options}
}

func (c *gltfToPsa) warn(format string, a ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, a...))
}

// boneTrack holds the animation channels of one bone in glTF node
// space, plus the node's rest transform for the unanimated parts.
type boneTrack struct {
	rotTimes  []float32
	rotations [][4]float32
	rotStep   bool
	locTimes  []float32
	locations [][3]float32
	locStep   bool

	restRotation geom.Quaternion
	restLocation geom.Vector3
}

// keyAlpha locates time t between the keys. The returned alpha is the
// blend toward key k+1, zero at or outside the ends.
func keyAlpha(times []float32, t float32) (int, float32) {
	n := len(times)
	if n == 0 {
		return -1, 0
	}
	if t <= times[0] {
		return 0, 0
	}
	if t >= times[n-1] {
		return n - 1, 0
	}
	k := sort.Search(n, func(i int) bool { return times[i] > t }) - 1
	span := times[k+1] - times[k]
	if span <= 0 {
		return k, 0
	}
	return k, (t - times[k]) / span
}

func (tr *boneTrack) rotationAt(t float32) *geom.Quaternion {
	k, alpha := keyAlpha(tr.rotTimes, t)
	if k < 0 {
		r := tr.restRotation
		return &r
	}
	a := tr.rotations[k]
	if alpha == 0 || tr.rotStep {
		return geom.NewQuaternionFromArray(a)
	}
	b := tr.rotations[k+1]
	if a[0]*b[0]+a[1]*b[1]+a[2]*b[2]+a[3]*b[3] < 0 {
		b = [4]float32{-b[0], -b[1], -b[2], -b[3]}
	}
	q := geom.NewQuaternion(
		a[0]+(b[0]-a[0])*alpha,
		a[1]+(b[1]-a[1])*alpha,
		a[2]+(b[2]-a[2])*alpha,
		a[3]+(b[3]-a[3])*alpha)
	return q.Normalize()
}

func (tr *boneTrack) locationAt(t float32) *geom.Vector3 {
	k, alpha := keyAlpha(tr.locTimes, t)
	if k < 0 {
		l := tr.restLocation
		return &l
	}
	a := tr.locations[k]
	if alpha == 0 || tr.locStep {
		return geom.NewVector3FromArray(a)
	}
	b := tr.locations[k+1]
	return geom.NewVector3FromArray(a).Lerp(geom.NewVector3FromArray(b), alpha)
}

// cubicVec4Values drops the tangent elements of a CUBICSPLINE output so
// the values can be interpolated linearly.
func cubicVec4Values(output [][4]float32, keys int) [][4]float32 {
	if len(output) != keys*3 {
		return output
	}
	values := make([][4]float32, keys)
	for i := range values {
		values[i] = output[i*3+1]
	}
	return values
}

func cubicVec3Values(output [][3]float32, keys int) [][3]float32 {
	if len(output) != keys*3 {
		return output
	}
	values := make([][3]float32, keys)
	for i := range values {
		values[i] = output[i*3+1]
	}
	return values
}

// buildTracks reads the channels of one animation into per bone tracks.
// bones gives the node to bone mapping.
func (c *gltfToPsa) buildTracks(doc *gltf.Document, anim *gltf.Animation, bones []skinBone) []boneTrack {
	tracks := make([]boneTrack, len(bones))
	boneOf := map[int]int{}
	for bi, sb := range bones {
		boneOf[sb.node] = bi
		rot, pos := nodeTransform(doc.Nodes[sb.node])
		tracks[bi].restRotation = *rot
		tracks[bi].restLocation = *pos
	}
	for _, ch := range anim.Channels {
		if ch.Target.Node == nil || ch.Sampler == nil {
			continue
		}
		bi, ok := boneOf[int(*ch.Target.Node)]
		if !ok {
			continue
		}
		sampler := anim.Samplers[*ch.Sampler]
		if sampler.Input == nil || sampler.Output == nil {
			continue
		}
		input, err := gltfutil.ReadFloats(doc, doc.Accessors[*sampler.Input])
		if err != nil {
			c.warn("animation %s: bad input accessor: %v", anim.Name, err)
			continue
		}
		cubic := sampler.Interpolation == gltf.InterpolationCubicSpline
		if cubic {
			c.warn("animation %s: cubic spline channel sampled linearly", anim.Name)
		}
		switch ch.Target.Path {
		case gltf.TRSRotation:
			output, err := gltfutil.ReadVec4(doc, doc.Accessors[*sampler.Output])
			if err != nil {
				c.warn("animation %s: bad rotation accessor: %v", anim.Name, err)
				continue
			}
			if cubic {
				output = cubicVec4Values(output, len(input))
			}
			tracks[bi].rotTimes = input
			tracks[bi].rotations = output
			tracks[bi].rotStep = sampler.Interpolation == gltf.InterpolationStep
		case gltf.TRSTranslation:
			output, err := gltfutil.ReadVec3(doc, doc.Accessors[*sampler.Output])
			if err != nil {
				c.warn("animation %s: bad translation accessor: %v", anim.Name, err)
				continue
			}
			if cubic {
				output = cubicVec3Values(output, len(input))
			}
			tracks[bi].locTimes = input
			tracks[bi].locations = output
			tracks[bi].locStep = sampler.Interpolation == gltf.InterpolationStep
		}
	}
	return tracks
}

func tracksDuration(tracks []boneTrack) float32 {
	var duration float32
	for i := range tracks {
		if n := len(tracks[i].rotTimes); n > 0 && tracks[i].rotTimes[n-1] > duration {
			duration = tracks[i].rotTimes[n-1]
		}
		if n := len(tracks[i].locTimes); n > 0 && tracks[i].locTimes[n-1] > duration {
			duration = tracks[i].locTimes[n-1]
		}
	}
	return duration
}

// trackSampler yields the local space pose of every bone frame by
// frame, sampling the tracks along the timeline.
type trackSampler struct {
	conv       *actorx.SpaceConverter
	tracks     []boneTrack
	scale      float32
	rootMotion bool

	frameStart float64
	frameStep  float64
	frameCount int
	rate       float64 // timeline frames per second

	bone, frame int
}

func (s *trackSampler) NextSample() (actorx.Sample, bool) {
	if s.frame >= s.frameCount {
		return actorx.Sample{}, false
	}
	bone, frame := s.bone, s.frame
	s.bone++
	if s.bone >= len(s.tracks) {
		s.bone = 0
		s.frame++
	}

	if bone == 0 && !s.rootMotion {
		// bind pose root
		return actorx.Sample{BoneIndex: bone, Frame: frame, Rotation: geom.Quaternion{W: 1}}, true
	}

	t := float32((s.frameStart + float64(frame)*s.frameStep) / s.rate)
	track := &s.tracks[bone]
	nodeRotation := track.rotationAt(t)
	nodeLocation := track.locationAt(t)

	post := s.conv.PostRotation(bone)
	localRotation := post.Inverse().Mul(nodeRotation).Normalize()
	localLocation := post.Inverse().ApplyTo(nodeLocation.Scale(s.scale).Sub(s.conv.OrigLocation(bone)))
	return actorx.Sample{BoneIndex: bone, Frame: frame, Rotation: *localRotation, Location: *localLocation}, true
}

// sequenceFrames applies the compression settings to a frame range.
// The step walks the range backwards when end < start.
func sequenceFrames(start, end int, ratio float64, quota int) (int, float64) {
	extents := math.Abs(float64(end - start))
	raw := extents + 1
	count := int(raw * ratio)
	if quota > count {
		count = quota
	}
	if count < 1 {
		count = 1
	}
	step := 0.0
	if count > 1 {
		step = extents / float64(count-1)
	}
	if start > end {
		step = -step
	}
	return count, step
}

func (c *gltfToPsa) sequences(doc *gltf.Document, tracks [][]boneTrack) ([]actorx.Sequence, []int) {
	if len(c.Segments) > 0 || len(c.Markers) > 0 {
		if len(doc.Animations) > 1 {
			c.warn("segments apply to the first animation only, %d animations present", len(doc.Animations))
		}
		var seqs []actorx.Sequence
		if len(c.Markers) > 0 {
			seqs = actorx.SequencesFromMarkers(c.Markers, c.Segments)
		} else {
			seqs = actorx.SequencesFromSegments(c.Segments)
		}
		anims := make([]int, len(seqs))
		return seqs, anims
	}
	var seqs []actorx.Sequence
	var anims []int
	for i, a := range doc.Animations {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("anim_%d", i)
		}
		end := int(math.Round(float64(tracksDuration(tracks[i])) * c.ProjectRate))
		seqs = append(seqs, actorx.Sequence{Name: name, Start: 0, End: end})
		anims = append(anims, i)
	}
	return seqs, anims
}

// Convert samples the animations of a glTF document against its skin
// and assembles a psa. Sequences come from the preset segments and
// markers when given, otherwise one per animation.
func (c *gltfToPsa) Convert(doc *gltf.Document) (*actorx.PSADocument, error) {
	var skin *gltf.Skin
	for _, n := range doc.Nodes {
		if n.Skin != nil {
			skin = doc.Skins[*n.Skin]
			break
		}
	}
	if skin == nil && len(doc.Skins) > 0 {
		skin = doc.Skins[0]
	}
	if skin == nil {
		return nil, errors.New("no skin in the document")
	}
	if len(doc.Animations) == 0 {
		return nil, errors.New("no animations in the document")
	}

	parents := nodeParents(doc)
	bones := extractSkinBones(doc, skin, parents, c.Scale)

	b := actorx.NewAnimationBuilder()
	skelBones := make([]actorx.Bone, len(bones))
	for i, sb := range bones {
		b.AddBone(sb.name, sb.parent, &sb.rotation, &sb.position)
		skelBones[i] = actorx.Bone{Name: sb.name, ParentIndex: int32(sb.parent), Rotation: sb.rotation, Position: sb.position}
	}
	skeleton, err := actorx.NewSkeleton(skelBones)
	if err != nil {
		return nil, err
	}
	conv := actorx.NewSpaceConverter(skeleton)

	tracks := make([][]boneTrack, len(doc.Animations))
	for i, a := range doc.Animations {
		tracks[i] = c.buildTracks(doc, a, bones)
	}

	seqs, anims := c.sequences(doc, tracks)
	for i, seq := range seqs {
		overlapping := actorx.OverlappingSegments(c.Segments,
			math.Min(float64(seq.Start), float64(seq.End)),
			math.Max(float64(seq.Start), float64(seq.End)))
		rate := actorx.ResolveFrameRate(c.RateSource, c.ProjectRate, c.CustomRate, overlapping)
		if rate <= 0 {
			rate = c.ProjectRate
		}

		frameCount, frameStep := sequenceFrames(seq.Start, seq.End, c.CompressionRatio, c.KeyQuota)
		duration := (math.Abs(float64(seq.End-seq.Start)) + 1) / rate
		fps := float64(frameCount) / duration

		sampler := &trackSampler{
			conv:       conv,
			tracks:     tracks[anims[i]],
			scale:      c.Scale,
			rootMotion: c.RootMotion,
			frameStart: float64(seq.Start),
			frameStep:  frameStep,
			frameCount: frameCount,
			rate:       c.ProjectRate,
		}
		keys := conv.CollectKeys(sampler, float32(1/fps))
		if err := b.AddSequence(seq.Name, "", float32(fps), frameCount, keys); err != nil {
			return nil, err
		}
	}
	return b.Build()
}
