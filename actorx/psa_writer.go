package actorx

import (
	"fmt"
	"io"
)

// WritePSA serializes doc. The frame range of every sequence must fit
// within doc.Keys.
func WritePSA(doc *PSADocument, w io.Writer) error {
	pw := &psaWriter{chunkWriter: newChunkWriter(w)}
	return pw.Write(doc)
}

type psaWriter struct {
	*chunkWriter
}

func (w *psaWriter) Write(doc *PSADocument) error {
	if err := validatePSA(doc); err != nil {
		return err
	}
	w.writeSection(psaHeadTag, 0, 0)

	bones := make([]rawPsaBone, len(doc.Bones))
	for i := range doc.Bones {
		bones[i] = w.encodePsaBone(&doc.Bones[i])
	}
	w.writeSection(psaBonesTag, 120, len(bones))
	w.write(bones)

	infos := make([]rawSequenceInfo, len(doc.Sequences))
	for i, seq := range doc.Sequences {
		infos[i] = rawSequenceInfo{
			Name:             w.encodeName(seq.Name),
			Group:            w.encodeName(seq.Group),
			TotalBones:       seq.TotalBones,
			RootInclude:      seq.RootInclude,
			CompressionStyle: seq.CompressionStyle,
			KeyQuotum:        seq.KeyQuotum,
			KeyReduction:     seq.KeyReduction,
			TrackTime:        seq.TrackTime,
			FrameRate:        seq.FrameRate,
			StartBone:        seq.StartBone,
			FirstFrame:       seq.FirstFrame,
			FrameCount:       seq.FrameCount,
		}
	}
	w.writeSection(psaInfoTag, 168, len(infos))
	w.write(infos)

	w.writeSection(psaKeysTag, 32, len(doc.Keys))
	w.write(doc.Keys)
	return w.err
}

func validatePSA(doc *PSADocument) error {
	if len(doc.Bones) == 0 {
		return &PreconditionError{Reason: "no bones"}
	}
	for i, seq := range doc.Sequences {
		if seq.Name == "" {
			return &PreconditionError{Reason: fmt.Sprintf("sequence %d has no name", i)}
		}
		if seq.FrameCount < 0 || seq.FirstFrame < 0 {
			return &PreconditionError{Reason: fmt.Sprintf("sequence %q: bad frame range", seq.Name)}
		}
		if seq.TotalBones != 0 && int(seq.TotalBones) != len(doc.Bones) {
			return &PreconditionError{Reason: fmt.Sprintf("sequence %q: bone count mismatch", seq.Name)}
		}
		if end := (int(seq.FirstFrame) + int(seq.FrameCount)) * len(doc.Bones); end > len(doc.Keys) {
			return &PreconditionError{Reason: fmt.Sprintf("sequence %q needs %d keys, document has %d", seq.Name, end, len(doc.Keys))}
		}
	}
	return nil
}
