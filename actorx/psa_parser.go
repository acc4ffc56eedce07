package actorx

import (
	"fmt"
	"io"
)

// ParsePSA reads an animation set from r. BONENAMES, ANIMINFO and
// ANIMKEYS are mandatory. Trailing sections such as SCALEKEYS are
// skipped.
func ParsePSA(r io.Reader) (*PSADocument, error) {
	p := &psaParser{chunkReader: newChunkReader(r)}
	return p.Parse()
}

type psaParser struct {
	*chunkReader
}

func (p *psaParser) Parse() (*PSADocument, error) {
	if _, err := p.expectSection(psaHeadTag, 0); err != nil {
		return nil, err
	}
	doc := &PSADocument{}
	p.readBones(doc)
	p.readSequences(doc)
	p.readKeys(doc)
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
		doc.Warnings = append(doc.Warnings, fmt.Sprintf("skipped section %q", sec.Tag))
		if p.skipSection(sec) != nil {
			return nil, p.err
		}
	}
	return doc, nil
}

func (p *psaParser) readBones(doc *PSADocument) {
	sec, err := p.expectSection(psaBonesTag, 120)
	if err != nil {
		return
	}
	raw := make([]rawPsaBone, sec.Count)
	if p.readRecords(sec, raw) != nil {
		return
	}
	doc.Bones = make([]Bone, len(raw))
	for i := range raw {
		doc.Bones[i] = p.decodePsaBone(&raw[i])
	}
}

func (p *psaParser) readSequences(doc *PSADocument) {
	sec, err := p.expectSection(psaInfoTag, 168)
	if err != nil {
		return
	}
	raw := make([]rawSequenceInfo, sec.Count)
	if p.readRecords(sec, raw) != nil {
		return
	}
	doc.Sequences = make([]SequenceInfo, len(raw))
	for i, info := range raw {
		if info.FrameCount < 0 || info.FirstFrame < 0 {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("bad frame range: %d+%d", info.FirstFrame, info.FrameCount)}
			return
		}
		if info.TotalBones != 0 && int(info.TotalBones) != len(doc.Bones) {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("bone count mismatch: %d (want %d)", info.TotalBones, len(doc.Bones))}
			return
		}
		doc.Sequences[i] = SequenceInfo{
			Name:             p.decodeName(info.Name[:]),
			Group:            p.decodeName(info.Group[:]),
			TotalBones:       info.TotalBones,
			RootInclude:      info.RootInclude,
			CompressionStyle: info.CompressionStyle,
			KeyQuotum:        info.KeyQuotum,
			KeyReduction:     info.KeyReduction,
			TrackTime:        info.TrackTime,
			FrameRate:        info.FrameRate,
			StartBone:        info.StartBone,
			FirstFrame:       info.FirstFrame,
			FrameCount:       info.FrameCount,
		}
	}
}

func (p *psaParser) readKeys(doc *PSADocument) {
	sec, err := p.expectSection(psaKeysTag, 32)
	if err != nil {
		return
	}
	for _, seq := range doc.Sequences {
		end := (int(seq.FirstFrame) + int(seq.FrameCount)) * len(doc.Bones)
		if end > sec.Count {
			p.err = &FormatError{Tag: sec.Tag, Offset: sec.Offset,
				Reason: fmt.Sprintf("sequence %q needs %d keys, section has %d", seq.Name, end, sec.Count)}
			return
		}
	}
	doc.Keys = make([]Key, sec.Count)
	p.readRecords(sec, doc.Keys)
}
