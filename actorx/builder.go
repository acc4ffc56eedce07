package actorx

import (
	"fmt"

	"github.com/binzume/axconv/geom"
)

// MeshBuilder assembles a PSKDocument from host geometry. Indexes
// returned by the Add methods are the indexes written to the file.
type MeshBuilder struct {
	doc    PSKDocument
	wedges map[Wedge]int
}

func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{wedges: map[Wedge]int{}}
}

func (b *MeshBuilder) AddPoint(p *geom.Vector3) int {
	b.doc.Points = append(b.doc.Points, *p)
	return len(b.doc.Points) - 1
}

// AddWedge returns the index of an existing identical wedge when one
// was already added.
func (b *MeshBuilder) AddWedge(pointIndex int, u, v float32, materialIndex int) int {
	w := Wedge{PointIndex: uint32(pointIndex), U: u, V: v, MaterialIndex: uint8(materialIndex)}
	if i, ok := b.wedges[w]; ok {
		return i
	}
	i := len(b.doc.Wedges)
	b.doc.Wedges = append(b.doc.Wedges, w)
	b.wedges[w] = i
	return i
}

func (b *MeshBuilder) AddFace(w0, w1, w2, materialIndex int, smoothingGroups uint32) {
	b.doc.Faces = append(b.doc.Faces, Face{
		WedgeIndexes:    [3]uint32{uint32(w0), uint32(w1), uint32(w2)},
		MaterialIndex:   uint8(materialIndex),
		SmoothingGroups: smoothingGroups,
	})
}

// AddMaterial returns the new slot index. The texture index mirrors
// the slot index.
func (b *MeshBuilder) AddMaterial(name string) int {
	i := len(b.doc.Materials)
	b.doc.Materials = append(b.doc.Materials, Material{Name: name, TextureIndex: int32(i)})
	return i
}

// AddBone appends a bone. rotation and position are parent relative in
// the stored convention. A negative parentIndex marks the root, which
// must come first.
func (b *MeshBuilder) AddBone(name string, parentIndex int, rotation *geom.Quaternion, position *geom.Vector3) int {
	i := len(b.doc.Bones)
	b.doc.Bones = append(b.doc.Bones, makeBone(b.doc.Bones, name, parentIndex, rotation, position))
	return i
}

func (b *MeshBuilder) AddWeight(pointIndex, boneIndex int, weight float32) {
	b.doc.Weights = append(b.doc.Weights, Weight{Weight: weight, PointIndex: int32(pointIndex), BoneIndex: int32(boneIndex)})
}

func (b *MeshBuilder) AddVertexColor(c Color) {
	b.doc.VertexColors = append(b.doc.VertexColors, c)
}

func (b *MeshBuilder) AddNormal(n *geom.Vector3) {
	b.doc.Normals = append(b.doc.Normals, *n)
}

// AddExtraUV appends one uv per wedge as an extra channel.
func (b *MeshBuilder) AddExtraUV(uv []geom.Vector2) {
	b.doc.ExtraUVs = append(b.doc.ExtraUVs, uv)
}

func (b *MeshBuilder) AddMorph(m Morph) {
	b.doc.Morphs = append(b.doc.Morphs, m)
}

// Build validates the assembled document. The 32 bit face encoding is
// selected automatically when the wedge count requires it.
func (b *MeshBuilder) Build() (*PSKDocument, error) {
	doc := b.doc
	doc.Faces32 = len(doc.Wedges) > 65536
	for i, w := range doc.Wedges {
		if int(w.MaterialIndex) >= len(doc.Materials) {
			return nil, &PreconditionError{Reason: fmt.Sprintf("wedge %d: material index out of range", i)}
		}
	}
	for i, f := range doc.Faces {
		if int(f.MaterialIndex) >= len(doc.Materials) {
			return nil, &PreconditionError{Reason: fmt.Sprintf("face %d: material index out of range", i)}
		}
	}
	if err := validatePSK(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// makeBone shapes a bone record and keeps the parent's child count
// up to date. The root is stored as a self reference at index 0.
func makeBone(bones []Bone, name string, parentIndex int, rotation *geom.Quaternion, position *geom.Vector3) Bone {
	if parentIndex < 0 {
		parentIndex = 0
	} else if parentIndex < len(bones) {
		bones[parentIndex].ChildCount++
	}
	return Bone{
		Name:        name,
		ParentIndex: int32(parentIndex),
		Rotation:    *rotation,
		Position:    *position,
	}
}

// AnimationBuilder assembles a PSADocument sequence by sequence.
type AnimationBuilder struct {
	doc PSADocument
}

func NewAnimationBuilder() *AnimationBuilder {
	return &AnimationBuilder{}
}

// AddBone appends a bone. rotation and position are parent relative in
// the stored convention. Bones must all be added before the first
// sequence.
func (b *AnimationBuilder) AddBone(name string, parentIndex int, rotation *geom.Quaternion, position *geom.Vector3) int {
	i := len(b.doc.Bones)
	b.doc.Bones = append(b.doc.Bones, makeBone(b.doc.Bones, name, parentIndex, rotation, position))
	return i
}

// AddSequence appends one sequence and its keys. keys are frame major
// and must hold frameCount keys per bone. rate is the sample rate the
// keys were taken at.
func (b *AnimationBuilder) AddSequence(name, group string, rate float32, frameCount int, keys []Key) error {
	if name == "" {
		return &PreconditionError{Reason: "sequence has no name"}
	}
	if len(b.doc.Bones) == 0 {
		return &PreconditionError{Reason: "no bones"}
	}
	if len(keys) != frameCount*len(b.doc.Bones) {
		return &PreconditionError{Reason: fmt.Sprintf(
			"sequence %q: %d keys for %d frames of %d bones", name, len(keys), frameCount, len(b.doc.Bones))}
	}
	firstFrame := len(b.doc.Keys) / len(b.doc.Bones)
	b.doc.Sequences = append(b.doc.Sequences, SequenceInfo{
		Name:         name,
		Group:        group,
		TotalBones:   int32(len(b.doc.Bones)),
		KeyReduction: 1,
		TrackTime:    float32(frameCount),
		FrameRate:    rate,
		FirstFrame:   int32(firstFrame),
		FrameCount:   int32(frameCount),
	})
	b.doc.Keys = append(b.doc.Keys, keys...)
	return nil
}

func (b *AnimationBuilder) Build() (*PSADocument, error) {
	if err := validatePSA(&b.doc); err != nil {
		return nil, err
	}
	doc := b.doc
	return &doc, nil
}
