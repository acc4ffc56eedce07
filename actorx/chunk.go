package actorx

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/binzume/axconv/geom"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

const (
	pskHeadTag   = "ACTRHEAD"
	pointsTag    = "PNTS0000"
	wedgesTag    = "VTXW0000"
	facesTag     = "FACE0000"
	faces32Tag   = "FACE3200"
	materialsTag = "MATT0000"
	skeletonTag  = "REFSKELT"
	weightsTag   = "RAWWEIGHTS"
	colorsTag    = "VERTEXCOLOR"
	extraUVTag   = "EXTRAUVS" // prefix. EXTRAUVS0, EXTRAUVS1, ...
	normalsTag   = "VTXNORMS"
	morphInfoTag = "MRPHINFO"
	morphDataTag = "MRPHDATA"

	psaHeadTag  = "ANIMHEAD"
	psaBonesTag = "BONENAMES"
	psaInfoTag  = "ANIMINFO"
	psaKeysTag  = "ANIMKEYS"
)

// sectionTypeFlags is stamped on every section header by the ActorX
// exporter. Readers ignore it.
const sectionTypeFlags = 1999801

const sectionHeaderSize = 32

type sectionHeader struct {
	Name      [20]byte
	TypeFlags int32
	DataSize  int32
	DataCount int32
}

type section struct {
	Tag    string
	Size   int
	Count  int
	Offset int64
}

func (s *section) payloadEnd() int64 {
	return s.Offset + sectionHeaderSize + int64(s.Size)*int64(s.Count)
}

type positionReader struct {
	r        io.Reader
	position int64
}

func (r *positionReader) Read(p []byte) (n int, err error) {
	n, err = r.r.Read(p)
	r.position += int64(n)
	return n, err
}

func (r *positionReader) SkipTo(pos int64) error {
	offset := pos - r.position
	if offset < 0 {
		return fmt.Errorf("cannot rewind")
	}
	r.position = pos
	if s, ok := r.r.(io.Seeker); ok {
		_, err := s.Seek(offset, io.SeekCurrent)
		return err
	}
	_, err := io.CopyN(io.Discard, r.r, offset)
	return err
}

type chunkReader struct {
	r       *positionReader
	err     error
	decoder *encoding.Decoder
}

func newChunkReader(r io.Reader) *chunkReader {
	return &chunkReader{
		r:       &positionReader{r: r},
		decoder: charmap.Windows1252.NewDecoder(),
	}
}

func (p *chunkReader) read(v interface{}) error {
	if p.err == nil {
		p.err = binary.Read(p.r, binary.LittleEndian, v)
	}
	return p.err
}

// readSection reads the next 32 byte section header. io.EOF means a
// clean end of the file, anything else is broken input.
func (p *chunkReader) readSection() (*section, error) {
	if p.err != nil {
		return nil, p.err
	}
	offset := p.r.position
	var h sectionHeader
	if err := binary.Read(p.r, binary.LittleEndian, &h); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = &FormatError{Offset: offset, Reason: "truncated section header"}
		}
		p.err = err
		return nil, err
	}
	tag := string(bytes.SplitN(h.Name[:], []byte{0}, 2)[0])
	if h.DataSize < 0 || h.DataCount < 0 {
		p.err = &FormatError{Tag: tag, Offset: offset, Reason: "negative section size"}
		return nil, p.err
	}
	return &section{Tag: tag, Size: int(h.DataSize), Count: int(h.DataCount), Offset: offset}, nil
}

// expectSection reads the next header and checks its tag and record
// size. Sections with a fixed position in the file go through here.
func (p *chunkReader) expectSection(tag string, recordSize int) (*section, error) {
	sec, err := p.readSection()
	if err != nil {
		if err == io.EOF {
			p.err = &FormatError{Tag: tag, Offset: p.r.position, Reason: "missing section"}
			err = p.err
		}
		return nil, err
	}
	if sec.Tag != tag {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset, Reason: "unexpected section (want " + tag + ")"}
		return nil, p.err
	}
	return sec, p.checkRecordSize(sec, recordSize)
}

func (p *chunkReader) checkRecordSize(sec *section, recordSize int) error {
	if sec.Size != recordSize && sec.Count > 0 {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
			Reason: fmt.Sprintf("record size mismatch: %d (want %d)", sec.Size, recordSize)}
	}
	return p.err
}

// readRecords fills v from the section payload. v must be a slice of
// fixed size records matching the declared count.
func (p *chunkReader) readRecords(sec *section, v interface{}) error {
	if p.err != nil {
		return p.err
	}
	if err := binary.Read(p.r, binary.LittleEndian, v); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = &FormatError{Tag: sec.Tag, Offset: p.r.position, Reason: "truncated section"}
		}
		p.err = err
	}
	return p.err
}

func (p *chunkReader) skipSection(sec *section) error {
	if p.err != nil {
		return p.err
	}
	if err := p.r.SkipTo(sec.payloadEnd()); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			err = &FormatError{Tag: sec.Tag, Offset: p.r.position, Reason: "truncated section"}
		}
		p.err = err
	}
	return p.err
}

func (p *chunkReader) decodeName(b []byte) string {
	utf8Data, _, _ := transform.Bytes(p.decoder, bytes.SplitN(b, []byte{0}, 2)[0])
	return string(utf8Data)
}

type chunkWriter struct {
	w       io.Writer
	err     error
	encoder *encoding.Encoder
}

func newChunkWriter(w io.Writer) *chunkWriter {
	return &chunkWriter{
		w:       w,
		encoder: encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder()),
	}
}

func (w *chunkWriter) write(v interface{}) error {
	if w.err == nil {
		w.err = binary.Write(w.w, binary.LittleEndian, v)
	}
	return w.err
}

func (w *chunkWriter) writeSection(tag string, recordSize, count int) error {
	var h sectionHeader
	copy(h.Name[:], tag)
	h.TypeFlags = sectionTypeFlags
	h.DataSize = int32(recordSize)
	h.DataCount = int32(count)
	return w.write(&h)
}

func (w *chunkWriter) encodeName(s string) [64]byte {
	var b [64]byte
	raw, _, _ := transform.Bytes(w.encoder, []byte(s))
	copy(b[:], raw)
	return b
}

// Wire records. Field order matches the file layout, little endian.

type rawWedge struct {
	PointIndex    uint32
	U, V          float32
	MaterialIndex uint8
	Reserved      uint8
	Pad           uint16
}

type rawFace struct {
	WedgeIndexes     [3]uint16
	MaterialIndex    uint8
	AuxMaterialIndex uint8
	SmoothingGroups  uint32
}

type rawFace32 struct {
	WedgeIndexes     [3]uint32
	MaterialIndex    uint8
	AuxMaterialIndex uint8
	SmoothingGroups  uint32
}

type rawMaterial struct {
	Name         [64]byte
	TextureIndex int32
	PolyFlags    uint32
	AuxMaterial  int32
	AuxFlags     uint32
	LodBias      int32
	LodStyle     int32
}

type rawBone struct {
	Name        [64]byte
	Flags       uint32
	ChildCount  int32
	ParentIndex int32
	Rotation    geom.Quaternion
	Position    geom.Vector3
	Length      float32
	Size        geom.Vector3
}

// rawPsaBone shares the psk bone layout but the last 16 bytes are
// unused padding instead of the length and size fields.
type rawPsaBone struct {
	Name        [64]byte
	Flags       uint32
	ChildCount  int32
	ParentIndex int32
	Rotation    geom.Quaternion
	Position    geom.Vector3
	Padding     [16]byte
}

type rawMorphInfo struct {
	Name        [64]byte
	VertexCount int32
}

type rawSequenceInfo struct {
	Name             [64]byte
	Group            [64]byte
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

func (p *chunkReader) decodeBone(raw *rawBone) Bone {
	return Bone{
		Name:        p.decodeName(raw.Name[:]),
		Flags:       raw.Flags,
		ChildCount:  raw.ChildCount,
		ParentIndex: raw.ParentIndex,
		Rotation:    raw.Rotation,
		Position:    raw.Position,
		Length:      raw.Length,
		Size:        raw.Size,
	}
}

func (p *chunkReader) decodePsaBone(raw *rawPsaBone) Bone {
	return Bone{
		Name:        p.decodeName(raw.Name[:]),
		Flags:       raw.Flags,
		ChildCount:  raw.ChildCount,
		ParentIndex: raw.ParentIndex,
		Rotation:    raw.Rotation,
		Position:    raw.Position,
	}
}

func (w *chunkWriter) encodeBone(bone *Bone) rawBone {
	return rawBone{
		Name:        w.encodeName(bone.Name),
		Flags:       bone.Flags,
		ChildCount:  bone.ChildCount,
		ParentIndex: bone.ParentIndex,
		Rotation:    bone.Rotation,
		Position:    bone.Position,
		Length:      bone.Length,
		Size:        bone.Size,
	}
}

func (w *chunkWriter) encodePsaBone(bone *Bone) rawPsaBone {
	return rawPsaBone{
		Name:        w.encodeName(bone.Name),
		Flags:       bone.Flags,
		ChildCount:  bone.ChildCount,
		ParentIndex: bone.ParentIndex,
		Rotation:    bone.Rotation,
		Position:    bone.Position,
	}
}
