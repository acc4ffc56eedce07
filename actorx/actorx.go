package actorx

// https://wiki.beyondunreal.com/PSK_%26_PSA_file_formats
// https://dev.epicgames.com/documentation/en-us/unreal-engine/actorx-plug-in

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/binzume/axconv/geom"
)

// PSKDocument is an in-memory skeletal mesh loaded from a .psk file.
type PSKDocument struct {
	Points    []geom.Vector3
	Wedges    []Wedge
	Faces     []Face
	Materials []Material
	Bones     []Bone
	Weights   []Weight

	// Faces32 selects the FACE3200 section with 32 bit wedge indexes.
	// Required when the mesh has more wedges than uint16 can address.
	Faces32 bool

	// Optional sections. Empty slices mean the section was absent.
	VertexColors []Color
	ExtraUVs     [][]geom.Vector2
	Normals      []geom.Vector3
	Morphs       []Morph

	// MaterialReferences holds fully qualified material paths from a
	// sidecar .props.txt file, as written by UEViewer. Only LoadPSK
	// fills it.
	MaterialReferences []string

	// Warnings collects parser notes such as skipped sections. Never
	// serialized.
	Warnings []string
}

// PSADocument is an in-memory animation set loaded from a .psa file.
type PSADocument struct {
	Bones     []Bone
	Sequences []SequenceInfo

	// Keys hold all sequences flattened, frame-major within a sequence.
	// SequenceInfo.FirstFrame gives the frame offset of each sequence.
	Keys []Key

	// Warnings collects parser notes such as skipped sections. Never
	// serialized.
	Warnings []string
}

// Wedge binds a point to a UV and a material slot.
type Wedge struct {
	PointIndex    uint32
	U, V          float32
	MaterialIndex uint8
}

type Face struct {
	WedgeIndexes     [3]uint32
	MaterialIndex    uint8
	AuxMaterialIndex uint8
	SmoothingGroups  uint32
}

type Material struct {
	Name         string
	TextureIndex int32
	PolyFlags    uint32
	AuxMaterial  int32
	AuxFlags     uint32
	LodBias      int32
	LodStyle     int32
}

// Bone is a joint record shared by the psk and psa skeleton sections.
// Rotation and Position are parent-relative. ParentIndex keeps the raw
// value from the file. A root is encoded as -1 or as a self reference.
type Bone struct {
	Name        string
	Flags       uint32
	ChildCount  int32
	ParentIndex int32
	Rotation    geom.Quaternion
	Position    geom.Vector3
	Length      float32
	Size        geom.Vector3
}

type Weight struct {
	Weight     float32
	PointIndex int32
	BoneIndex  int32
}

type Color struct {
	R, G, B, A uint8
}

type Morph struct {
	Name   string
	Deltas []MorphDelta
}

type MorphDelta struct {
	PositionDelta geom.Vector3
	TangentDelta  geom.Vector3
	PointIndex    int32
}

// SequenceInfo describes one animation sequence within a psa file.
type SequenceInfo struct {
	Name             string
	Group            string
	TotalBones       int32
	RootInclude      int32
	CompressionStyle int32
	KeyQuotum        int32
	KeyReduction     float32
	TrackTime        float32
	FrameRate        float32
	StartBone        int32
	FirstFrame       int32
	FrameCount       int32
}

// Key is one bone pose sample. Within a frame, keys are ordered by bone.
type Key struct {
	Position geom.Vector3
	Rotation geom.Quaternion
	Time     float32
}

// SequenceKeys returns the key block of a sequence, bone-major within
// each frame.
func (doc *PSADocument) SequenceKeys(seq *SequenceInfo) []Key {
	n := len(doc.Bones)
	begin := int(seq.FirstFrame) * n
	end := begin + int(seq.FrameCount)*n
	if begin < 0 || end > len(doc.Keys) || begin > end {
		return nil
	}
	return doc.Keys[begin:end]
}

// FormatError reports a broken or unsupported binary layout.
type FormatError struct {
	Tag    string
	Offset int64
	Reason string
}

func (e *FormatError) Error() string {
	if e.Tag != "" {
		return fmt.Sprintf("actorx: %s (section %q at %d)", e.Reason, e.Tag, e.Offset)
	}
	return "actorx: " + e.Reason
}

// PreconditionError reports a document that cannot be serialized.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return "actorx: " + e.Reason
}

func LoadPSK(path string) (*PSKDocument, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	doc, err := ParsePSK(r)
	if err != nil {
		return nil, err
	}
	doc.MaterialReferences = readMaterialReferences(path)
	return doc, nil
}

var materialReferenceRe = regexp.MustCompile(`Material\s*=\s*([^\s^,]+)`)

// readMaterialReferences scans the sidecar .props.txt next to a psk
// file for material paths. A missing sidecar is not an error.
func readMaterialReferences(path string) []string {
	b, err := os.ReadFile(strings.TrimSuffix(path, filepath.Ext(path)) + ".props.txt")
	if err != nil {
		return nil
	}
	var refs []string
	for _, m := range materialReferenceRe.FindAllStringSubmatch(string(b), -1) {
		refs = append(refs, m[1])
	}
	return refs
}

func LoadPSA(path string) (*PSADocument, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return ParsePSA(r)
}

func SavePSK(doc *PSKDocument, path string) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	return WritePSK(doc, w)
}

func SavePSA(doc *PSADocument, path string) error {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer w.Close()
	return WritePSA(doc, w)
}
