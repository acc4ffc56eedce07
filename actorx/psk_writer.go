package actorx

import (
	"fmt"
	"io"
)

// WritePSK serializes doc in the section order the ActorX exporter
// uses. Optional sections are written only when present.
func WritePSK(doc *PSKDocument, w io.Writer) error {
	pw := &pskWriter{chunkWriter: newChunkWriter(w)}
	return pw.Write(doc)
}

type pskWriter struct {
	*chunkWriter
}

func (w *pskWriter) Write(doc *PSKDocument) error {
	if err := validatePSK(doc); err != nil {
		return err
	}
	w.writeSection(pskHeadTag, 0, 0)
	w.writePoints(doc)
	w.writeWedges(doc)
	w.writeFaces(doc)
	w.writeMaterials(doc)
	w.writeSkeleton(doc)
	w.writeWeights(doc)

	if len(doc.VertexColors) > 0 {
		w.writeSection(colorsTag, 4, len(doc.VertexColors))
		w.write(doc.VertexColors)
	}
	for i, uv := range doc.ExtraUVs {
		w.writeSection(fmt.Sprintf("%s%d", extraUVTag, i), 8, len(uv))
		w.write(uv)
	}
	if len(doc.Normals) > 0 {
		w.writeSection(normalsTag, 12, len(doc.Normals))
		w.write(doc.Normals)
	}
	w.writeMorphs(doc)
	return w.err
}

func (w *pskWriter) writePoints(doc *PSKDocument) {
	w.writeSection(pointsTag, 12, len(doc.Points))
	w.write(doc.Points)
}

func (w *pskWriter) writeWedges(doc *PSKDocument) {
	raw := make([]rawWedge, len(doc.Wedges))
	for i, wedge := range doc.Wedges {
		raw[i] = rawWedge{
			PointIndex:    wedge.PointIndex,
			U:             wedge.U,
			V:             wedge.V,
			MaterialIndex: wedge.MaterialIndex,
		}
	}
	w.writeSection(wedgesTag, 16, len(raw))
	w.write(raw)
}

func (w *pskWriter) writeFaces(doc *PSKDocument) {
	if doc.Faces32 {
		raw := make([]rawFace32, len(doc.Faces))
		for i, f := range doc.Faces {
			raw[i] = rawFace32{
				WedgeIndexes:     f.WedgeIndexes,
				MaterialIndex:    f.MaterialIndex,
				AuxMaterialIndex: f.AuxMaterialIndex,
				SmoothingGroups:  f.SmoothingGroups,
			}
		}
		w.writeSection(faces32Tag, 18, len(raw))
		w.write(raw)
		return
	}
	raw := make([]rawFace, len(doc.Faces))
	for i, f := range doc.Faces {
		raw[i] = rawFace{
			WedgeIndexes:     [3]uint16{uint16(f.WedgeIndexes[0]), uint16(f.WedgeIndexes[1]), uint16(f.WedgeIndexes[2])},
			MaterialIndex:    f.MaterialIndex,
			AuxMaterialIndex: f.AuxMaterialIndex,
			SmoothingGroups:  f.SmoothingGroups,
		}
	}
	w.writeSection(facesTag, 12, len(raw))
	w.write(raw)
}

func (w *pskWriter) writeMaterials(doc *PSKDocument) {
	raw := make([]rawMaterial, len(doc.Materials))
	for i, m := range doc.Materials {
		raw[i] = rawMaterial{
			Name:         w.encodeName(m.Name),
			TextureIndex: m.TextureIndex,
			PolyFlags:    m.PolyFlags,
			AuxMaterial:  m.AuxMaterial,
			AuxFlags:     m.AuxFlags,
			LodBias:      m.LodBias,
			LodStyle:     m.LodStyle,
		}
	}
	w.writeSection(materialsTag, 88, len(raw))
	w.write(raw)
}

func (w *pskWriter) writeSkeleton(doc *PSKDocument) {
	raw := make([]rawBone, len(doc.Bones))
	for i := range doc.Bones {
		raw[i] = w.encodeBone(&doc.Bones[i])
	}
	w.writeSection(skeletonTag, 120, len(raw))
	w.write(raw)
}

func (w *pskWriter) writeWeights(doc *PSKDocument) {
	w.writeSection(weightsTag, 12, len(doc.Weights))
	w.write(doc.Weights)
}

func (w *pskWriter) writeMorphs(doc *PSKDocument) {
	if len(doc.Morphs) == 0 {
		return
	}
	infos := make([]rawMorphInfo, len(doc.Morphs))
	total := 0
	for i, m := range doc.Morphs {
		infos[i] = rawMorphInfo{Name: w.encodeName(m.Name), VertexCount: int32(len(m.Deltas))}
		total += len(m.Deltas)
	}
	w.writeSection(morphInfoTag, 68, len(infos))
	w.write(infos)
	deltas := make([]MorphDelta, 0, total)
	for _, m := range doc.Morphs {
		deltas = append(deltas, m.Deltas...)
	}
	w.writeSection(morphDataTag, 28, len(deltas))
	w.write(deltas)
}

func validatePSK(doc *PSKDocument) error {
	if len(doc.Bones) == 0 || len(doc.Bones) > 256 {
		return &PreconditionError{Reason: fmt.Sprintf("bone count out of range: %d", len(doc.Bones))}
	}
	if len(doc.Materials) > 256 {
		return &PreconditionError{Reason: fmt.Sprintf("too many materials: %d", len(doc.Materials))}
	}
	if !doc.Faces32 && len(doc.Wedges) > 65536 {
		return &PreconditionError{Reason: fmt.Sprintf("too many wedges for 16 bit faces: %d", len(doc.Wedges))}
	}
	for i, m := range doc.Materials {
		if m.Name == "" {
			return &PreconditionError{Reason: fmt.Sprintf("material %d has no name", i)}
		}
	}
	for i, wedge := range doc.Wedges {
		if int(wedge.PointIndex) >= len(doc.Points) {
			return &PreconditionError{Reason: fmt.Sprintf("wedge %d: point index out of range", i)}
		}
	}
	for i, f := range doc.Faces {
		for _, wi := range f.WedgeIndexes {
			if int(wi) >= len(doc.Wedges) {
				return &PreconditionError{Reason: fmt.Sprintf("face %d: wedge index out of range", i)}
			}
		}
	}
	for i, weight := range doc.Weights {
		if int(weight.PointIndex) < 0 || int(weight.PointIndex) >= len(doc.Points) {
			return &PreconditionError{Reason: fmt.Sprintf("weight %d: point index out of range", i)}
		}
		if int(weight.BoneIndex) < 0 || int(weight.BoneIndex) >= len(doc.Bones) {
			return &PreconditionError{Reason: fmt.Sprintf("weight %d: bone index out of range", i)}
		}
	}
	if len(doc.VertexColors) > 0 && len(doc.VertexColors) != len(doc.Wedges) {
		return &PreconditionError{Reason: "vertex color count does not match wedges"}
	}
	for _, uv := range doc.ExtraUVs {
		if len(uv) != len(doc.Wedges) {
			return &PreconditionError{Reason: "extra uv count does not match wedges"}
		}
	}
	if len(doc.Normals) > 0 && len(doc.Normals) != len(doc.Points) {
		return &PreconditionError{Reason: "normal count does not match points"}
	}
	for _, m := range doc.Morphs {
		for _, d := range m.Deltas {
			if int(d.PointIndex) < 0 || int(d.PointIndex) >= len(doc.Points) {
				return &PreconditionError{Reason: fmt.Sprintf("morph %q: point index out of range", m.Name)}
			}
		}
	}
	return nil
}
