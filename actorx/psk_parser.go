package actorx

import (
	"fmt"
	"io"
	"strings"

	"github.com/binzume/axconv/geom"
)

// ParsePSK reads a skeletal mesh from r. Sections up to RAWWEIGHTS are
// mandatory and must appear in the order the ActorX exporter writes
// them. Optional sections may follow in any order and unknown ones are
// skipped.
func ParsePSK(r io.Reader) (*PSKDocument, error) {
	p := &pskParser{chunkReader: newChunkReader(r)}
	return p.Parse()
}

type pskParser struct {
	*chunkReader
	morphInfos  []rawMorphInfo
	morphDeltas []MorphDelta
}

func (p *pskParser) Parse() (*PSKDocument, error) {
	if _, err := p.expectSection(pskHeadTag, 0); err != nil {
		return nil, err
	}
	doc := &PSKDocument{}
	p.readPoints(doc)
	p.readWedges(doc)
	p.readFaces(doc)
	p.readMaterials(doc)
	p.readSkeleton(doc)
	p.readWeights(doc)
	if p.err != nil {
		return nil, p.err
	}

	for {
		sec, err := p.readSection()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch {
		case sec.Tag == colorsTag:
			p.readVertexColors(doc, sec)
		case sec.Tag == normalsTag:
			p.readNormals(doc, sec)
		case strings.HasPrefix(sec.Tag, extraUVTag):
			p.readExtraUVs(doc, sec)
		case sec.Tag == morphInfoTag:
			p.readMorphInfos(sec)
		case sec.Tag == morphDataTag:
			p.readMorphDeltas(sec)
		default:
			doc.Warnings = append(doc.Warnings, fmt.Sprintf("skipped section %q", sec.Tag))
			p.skipSection(sec)
		}
		if p.err != nil {
			return nil, p.err
		}
	}

	if err := p.finishMorphs(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *pskParser) readPoints(doc *PSKDocument) {
	sec, err := p.expectSection(pointsTag, 12)
	if err != nil {
		return
	}
	doc.Points = make([]geom.Vector3, sec.Count)
	p.readRecords(sec, doc.Points)
}

func (p *pskParser) readWedges(doc *PSKDocument) {
	sec, err := p.expectSection(wedgesTag, 16)
	if err != nil {
		return
	}
	raw := make([]rawWedge, sec.Count)
	if p.readRecords(sec, raw) != nil {
		return
	}
	// Old exporters reuse the upper half of PointIndex as padding, so
	// only the low 16 bits are meaningful unless the mesh actually has
	// more points than that.
	mask := uint32(0xffffffff)
	if len(doc.Points) <= 65536 {
		mask = 0xffff
	}
	doc.Wedges = make([]Wedge, len(raw))
	for i, w := range raw {
		point := w.PointIndex & mask
		if int(point) >= len(doc.Points) {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("point index out of range: %d", point)}
			return
		}
		doc.Wedges[i] = Wedge{PointIndex: point, U: w.U, V: w.V, MaterialIndex: w.MaterialIndex}
	}
}

func (p *pskParser) readFaces(doc *PSKDocument) {
	sec, err := p.readSection()
	if err != nil {
		if err == io.EOF {
			p.err = &FormatError{Tag: facesTag, Offset: p.r.position, Reason: "missing section"}
		}
		return
	}
	if sec.Tag != facesTag && sec.Tag != faces32Tag {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset, Reason: "unexpected section (want " + facesTag + ")"}
		return
	}
	// The wide variant is detected by the record size, not the tag.
	// Some exporters write 32 bit records under the FACE0000 tag.
	switch {
	case sec.Size == 18:
		raw := make([]rawFace32, sec.Count)
		if p.readRecords(sec, raw) != nil {
			return
		}
		doc.Faces32 = true
		doc.Faces = make([]Face, len(raw))
		for i, f := range raw {
			doc.Faces[i] = Face{
				WedgeIndexes:     f.WedgeIndexes,
				MaterialIndex:    f.MaterialIndex,
				AuxMaterialIndex: f.AuxMaterialIndex,
				SmoothingGroups:  f.SmoothingGroups,
			}
		}
	case sec.Size == 12 || sec.Count == 0:
		raw := make([]rawFace, sec.Count)
		if p.readRecords(sec, raw) != nil {
			return
		}
		doc.Faces32 = sec.Tag == faces32Tag
		doc.Faces = make([]Face, len(raw))
		for i, f := range raw {
			doc.Faces[i] = Face{
				WedgeIndexes:     [3]uint32{uint32(f.WedgeIndexes[0]), uint32(f.WedgeIndexes[1]), uint32(f.WedgeIndexes[2])},
				MaterialIndex:    f.MaterialIndex,
				AuxMaterialIndex: f.AuxMaterialIndex,
				SmoothingGroups:  f.SmoothingGroups,
			}
		}
	default:
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
			Reason: fmt.Sprintf("record size mismatch: %d (want 12 or 18)", sec.Size)}
		return
	}
	for _, f := range doc.Faces {
		for _, w := range f.WedgeIndexes {
			if int(w) >= len(doc.Wedges) {
				p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
					Reason: fmt.Sprintf("wedge index out of range: %d", w)}
				return
			}
		}
	}
}

func (p *pskParser) readMaterials(doc *PSKDocument) {
	sec, err := p.expectSection(materialsTag, 88)
	if err != nil {
		return
	}
	raw := make([]rawMaterial, sec.Count)
	if p.readRecords(sec, raw) != nil {
		return
	}
	doc.Materials = make([]Material, len(raw))
	for i, m := range raw {
		doc.Materials[i] = Material{
			Name:         p.decodeName(m.Name[:]),
			TextureIndex: m.TextureIndex,
			PolyFlags:    m.PolyFlags,
			AuxMaterial:  m.AuxMaterial,
			AuxFlags:     m.AuxFlags,
			LodBias:      m.LodBias,
			LodStyle:     m.LodStyle,
		}
	}
}

func (p *pskParser) readSkeleton(doc *PSKDocument) {
	sec, err := p.expectSection(skeletonTag, 120)
	if err != nil {
		return
	}
	raw := make([]rawBone, sec.Count)
	if p.readRecords(sec, raw) != nil {
		return
	}
	doc.Bones = make([]Bone, len(raw))
	for i := range raw {
		doc.Bones[i] = p.decodeBone(&raw[i])
	}
}

func (p *pskParser) readWeights(doc *PSKDocument) {
	sec, err := p.expectSection(weightsTag, 12)
	if err != nil {
		return
	}
	doc.Weights = make([]Weight, sec.Count)
	if p.readRecords(sec, doc.Weights) != nil {
		return
	}
	for _, w := range doc.Weights {
		if int(w.PointIndex) < 0 || int(w.PointIndex) >= len(doc.Points) {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("point index out of range: %d", w.PointIndex)}
			return
		}
		if int(w.BoneIndex) < 0 || int(w.BoneIndex) >= len(doc.Bones) {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("bone index out of range: %d", w.BoneIndex)}
			return
		}
	}
}

func (p *pskParser) readVertexColors(doc *PSKDocument, sec *section) {
	if p.checkRecordSize(sec, 4) != nil {
		return
	}
	if sec.Count != len(doc.Wedges) {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
			Reason: fmt.Sprintf("record count mismatch: %d (want %d)", sec.Count, len(doc.Wedges))}
		return
	}
	doc.VertexColors = make([]Color, sec.Count)
	p.readRecords(sec, doc.VertexColors)
}

func (p *pskParser) readNormals(doc *PSKDocument, sec *section) {
	if p.checkRecordSize(sec, 12) != nil {
		return
	}
	if sec.Count != len(doc.Points) {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
			Reason: fmt.Sprintf("record count mismatch: %d (want %d)", sec.Count, len(doc.Points))}
		return
	}
	doc.Normals = make([]geom.Vector3, sec.Count)
	p.readRecords(sec, doc.Normals)
}

func (p *pskParser) readExtraUVs(doc *PSKDocument, sec *section) {
	if p.checkRecordSize(sec, 8) != nil {
		return
	}
	if sec.Count != len(doc.Wedges) {
		p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
			Reason: fmt.Sprintf("record count mismatch: %d (want %d)", sec.Count, len(doc.Wedges))}
		return
	}
	uv := make([]geom.Vector2, sec.Count)
	if p.readRecords(sec, uv) == nil {
		doc.ExtraUVs = append(doc.ExtraUVs, uv)
	}
}

func (p *pskParser) readMorphInfos(sec *section) {
	if p.checkRecordSize(sec, 68) != nil {
		return
	}
	raw := make([]rawMorphInfo, sec.Count)
	if p.readRecords(sec, raw) == nil {
		p.morphInfos = append(p.morphInfos, raw...)
	}
}

func (p *pskParser) readMorphDeltas(sec *section) {
	if p.checkRecordSize(sec, 28) != nil {
		return
	}
	deltas := make([]MorphDelta, sec.Count)
	if p.readRecords(sec, deltas) == nil {
		p.morphDeltas = append(p.morphDeltas, deltas...)
	}
}

// finishMorphs splits the flat delta array by the per-morph counts
// declared in MRPHINFO.
func (p *pskParser) finishMorphs(doc *PSKDocument) error {
	if len(p.morphInfos) == 0 && len(p.morphDeltas) == 0 {
		return nil
	}
	total := 0
	for _, info := range p.morphInfos {
		if info.VertexCount < 0 {
			return &FormatError{Tag: morphInfoTag, Reason: "negative morph vertex count"}
		}
		total += int(info.VertexCount)
	}
	if total != len(p.morphDeltas) {
		return &FormatError{Tag: morphDataTag,
			Reason: fmt.Sprintf("morph delta count mismatch: %d (want %d)", len(p.morphDeltas), total)}
	}
	for _, d := range p.morphDeltas {
		if int(d.PointIndex) < 0 || int(d.PointIndex) >= len(doc.Points) {
			return &FormatError{Tag: morphDataTag,
				Reason: fmt.Sprintf("point index out of range: %d", d.PointIndex)}
		}
	}
	offset := 0
	for _, info := range p.morphInfos {
		n := int(info.VertexCount)
		doc.Morphs = append(doc.Morphs, Morph{
			Name:   p.decodeName(info.Name[:]),
			Deltas: p.morphDeltas[offset : offset+n],
		})
		offset += n
	}
	return nil
}
