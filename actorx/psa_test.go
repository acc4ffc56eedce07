package actorx

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/binzume/axconv/geom"
)

func testPSADocument() *PSADocument {
	doc := &PSADocument{
		Bones: []Bone{
			{Name: "root", ParentIndex: 0, Rotation: geom.Quaternion{W: 1}},
			{Name: "arm", ParentIndex: 0, Rotation: geom.Quaternion{W: 1}, Position: geom.Vector3{X: 1}},
		},
		Sequences: []SequenceInfo{
			{Name: "Walk", Group: "loco", TotalBones: 2, KeyReduction: 1, TrackTime: 2, FrameRate: 30, FirstFrame: 0, FrameCount: 2},
			{Name: "Idle", TotalBones: 2, KeyReduction: 1, TrackTime: 1, FrameRate: 30, FirstFrame: 2, FrameCount: 1},
		},
	}
	for i := 0; i < 6; i++ {
		doc.Keys = append(doc.Keys, Key{
			Position: geom.Vector3{X: float32(i)},
			Rotation: geom.Quaternion{W: 1},
			Time:     1.0 / 30,
		})
	}
	return doc
}

func TestPSARoundTrip(t *testing.T) {
	doc := testPSADocument()
	var b bytes.Buffer
	if err := WritePSA(doc, &b); err != nil {
		t.Fatal("WritePSA: ", err)
	}
	parsed, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal("ParsePSA: ", err)
	}
	if !reflect.DeepEqual(doc, parsed) {
		t.Error("document changed after round trip:\n", doc, "\n", parsed)
	}
}

// Sequences address their key block by the stored first frame, so gaps
// and shared blocks survive a round trip as-is.
func TestPSAFirstFramePreserved(t *testing.T) {
	doc := testPSADocument()
	doc.Sequences = []SequenceInfo{
		{Name: "A", TotalBones: 2, FirstFrame: 0, FrameCount: 1},
		{Name: "B", TotalBones: 2, FirstFrame: 2, FrameCount: 1},
	}
	var b bytes.Buffer
	if err := WritePSA(doc, &b); err != nil {
		t.Fatal("WritePSA: ", err)
	}
	parsed, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal("ParsePSA: ", err)
	}
	if parsed.Sequences[0].FirstFrame != 0 || parsed.Sequences[1].FirstFrame != 2 {
		t.Error("first frames: ", parsed.Sequences[0].FirstFrame, parsed.Sequences[1].FirstFrame)
	}
	keys := parsed.SequenceKeys(&parsed.Sequences[1])
	if len(keys) != 2 || keys[0].Position.X != 4 {
		t.Error("sequence keys: ", keys)
	}
}

// The psa bone record has no length and size fields, only padding.
func TestPSABonePadding(t *testing.T) {
	doc := testPSADocument()
	doc.Bones[1].Length = 5
	doc.Bones[1].Size = geom.Vector3{X: 1, Y: 2, Z: 3}

	var b bytes.Buffer
	if err := WritePSA(doc, &b); err != nil {
		t.Fatal("WritePSA: ", err)
	}
	parsed, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal("ParsePSA: ", err)
	}
	if parsed.Bones[1].Length != 0 || parsed.Bones[1].Size != (geom.Vector3{}) {
		t.Error("bone tail not padding: ", parsed.Bones[1])
	}
}

func TestPSAKeyShortfall(t *testing.T) {
	var b bytes.Buffer
	w := newChunkWriter(&b)
	w.writeSection(psaHeadTag, 0, 0)
	bone := w.encodePsaBone(&Bone{Name: "root", Rotation: geom.Quaternion{W: 1}})
	w.writeSection(psaBonesTag, 120, 1)
	w.write(&bone)
	w.writeSection(psaInfoTag, 168, 1)
	w.write(&rawSequenceInfo{Name: w.encodeName("Walk"), TotalBones: 1, FrameCount: 5})
	w.writeSection(psaKeysTag, 32, 2)
	w.write(make([]Key, 2))

	_, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if _, ok := err.(*FormatError); !ok {
		t.Error("want FormatError, got ", err)
	}
}

func TestPSABoneCountMismatch(t *testing.T) {
	var b bytes.Buffer
	w := newChunkWriter(&b)
	w.writeSection(psaHeadTag, 0, 0)
	bone := w.encodePsaBone(&Bone{Name: "root", Rotation: geom.Quaternion{W: 1}})
	w.writeSection(psaBonesTag, 120, 1)
	w.write(&bone)
	w.writeSection(psaInfoTag, 168, 1)
	w.write(&rawSequenceInfo{Name: w.encodeName("Walk"), TotalBones: 3, FrameCount: 1})

	_, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if _, ok := err.(*FormatError); !ok {
		t.Error("want FormatError, got ", err)
	}
}

func TestPSASkipTrailingSection(t *testing.T) {
	doc := testPSADocument()
	var b bytes.Buffer
	if err := WritePSA(doc, &b); err != nil {
		t.Fatal("WritePSA: ", err)
	}
	w := newChunkWriter(&b)
	w.writeSection("SCALEKEYS", 16, 3)
	w.write(make([]byte, 48))

	parsed, err := ParsePSA(bytes.NewReader(b.Bytes()))
	if err != nil {
		t.Fatal("ParsePSA: ", err)
	}
	if len(parsed.Warnings) != 1 || parsed.Warnings[0] != `skipped section "SCALEKEYS"` {
		t.Error("warnings: ", parsed.Warnings)
	}
	parsed.Warnings = nil
	if !reflect.DeepEqual(doc, parsed) {
		t.Error("document changed after round trip")
	}
}

func TestWritePSAPreconditions(t *testing.T) {
	var b bytes.Buffer

	doc := testPSADocument()
	doc.Bones = nil
	if err := WritePSA(doc, &b); err == nil {
		t.Error("missing bones accepted")
	} else if _, ok := err.(*PreconditionError); !ok {
		t.Error("want PreconditionError, got ", err)
	}

	doc = testPSADocument()
	doc.Sequences[0].Name = ""
	if err := WritePSA(doc, &b); err == nil {
		t.Error("empty sequence name accepted")
	}

	doc = testPSADocument()
	doc.Sequences[1].FrameCount = 10
	if err := WritePSA(doc, &b); err == nil {
		t.Error("frame range past the key block accepted")
	}
}
