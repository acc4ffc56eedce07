package gltfutil

import (
	"encoding/binary"
	"errors"
	"io/ioutil"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/axconv/geom"
	"github.com/qmuntal/gltf"
	gltfbinary "github.com/qmuntal/gltf/binary"
	"github.com/qmuntal/gltf/modeler"
)

func Load(path string) (*gltf.Document, error) {
	return gltf.Open(path)
}

// Save writes doc as .glb or .gltf depending on the file extension.
func Save(doc *gltf.Document, path string) error {
	if strings.ToLower(filepath.Ext(path)) == ".glb" {
		return gltf.SaveBinary(doc, path)
	}
	return gltf.Save(doc, path)
}

// ToSingleFile embeds external images into the buffer so the document
// can be saved as a self contained .glb.
func ToSingleFile(doc *gltf.Document, srcDir string) error {
	for _, b := range doc.Buffers {
		b.URI = ""
	}
	for _, m := range doc.Images {
		if m.BufferView == nil && m.URI != "" {
			f, err := os.Open(filepath.Join(srcDir, m.URI))
			if err != nil {
				log.Print(err)
				continue
			}
			buf, err := ioutil.ReadAll(f)
			f.Close()
			if err != nil {
				log.Print(err)
				continue
			}
			if m.MimeType == "" {
				if strings.HasSuffix(strings.ToLower(m.URI), ".png") {
					m.MimeType = "image/png"
				} else {
					m.MimeType = "image/jpeg"
				}
			}
			m.BufferView = gltf.Index(modeler.WriteBufferView(doc, gltf.TargetNone, buf))
			m.URI = ""
		}
	}
	return nil
}

// Transform scales and offsets the whole document in place: mesh
// positions, morph deltas, node translations and inverse bind matrices.
// Morph deltas only receive the scale.
func Transform(doc *gltf.Document, scale *geom.Vector3, offset *geom.Vector3) error {
	if scale == nil && offset == nil {
		return nil
	}
	scaleMat := geom.NewMatrix4()
	if scale != nil {
		scaleMat = geom.NewScaleMatrix4(scale.X, scale.Y, scale.Z)
	}
	scaleOffsetMat := scaleMat
	if offset != nil {
		scaleOffsetMat = geom.NewTranslateMatrix4(offset.X, offset.Y, offset.Z).Mul(scaleMat)
	}

	accs := map[uint32]bool{}
	for _, m := range doc.Meshes {
		for _, p := range m.Primitives {
			if a, ok := p.Attributes["POSITION"]; ok {
				accs[a] = false
			}
			for _, t := range p.Targets {
				if a, ok := t["POSITION"]; ok {
					accs[a] = true
				}
			}
		}
	}
	for a, diff := range accs {
		acr := doc.Accessors[a]
		if acr.Sparse != nil {
			return errors.New("sparse accessor is not supported")
		}
		pos, err := modeler.ReadPosition(doc, acr, [][3]float32{})
		if err != nil {
			return err
		}

		acr.Min = []float32{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32}
		acr.Max = []float32{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32}
		for i := range pos {
			if diff {
				scaleMat.ApplyTo(geom.NewVector3FromArray(pos[i])).ToArray(pos[i][:])
			} else {
				scaleOffsetMat.ApplyTo(geom.NewVector3FromArray(pos[i])).ToArray(pos[i][:])
			}
			for t, v := range pos[i] {
				acr.Min[t] = float32(math.Min(float64(acr.Min[t]), float64(v)))
				acr.Max[t] = float32(math.Max(float64(acr.Max[t]), float64(v)))
			}
		}
		bufferView := doc.BufferViews[*acr.BufferView]
		buffer := doc.Buffers[bufferView.Buffer]
		err = gltfbinary.Write(buffer.Data[bufferView.ByteOffset+acr.ByteOffset:], bufferView.ByteStride, pos)
		if err != nil {
			return err
		}
	}
	for _, node := range doc.Nodes {
		scaleMat.ApplyTo(geom.NewVector3FromArray(node.Translation)).ToArray(node.Translation[:])
	}
	for _, skin := range doc.Skins {
		if skin.InverseBindMatrices == nil {
			continue
		}
		accessor := doc.Accessors[*skin.InverseBindMatrices]
		if accessor.BufferView == nil {
			continue
		}
		bufferView := doc.BufferViews[*accessor.BufferView]
		data := doc.Buffers[bufferView.Buffer].Data
		if len(data) == 0 {
			continue
		}
		for i := range skin.Joints {
			offset := bufferView.ByteOffset + accessor.ByteOffset + uint32(i)*64
			mat := readMatrix(data[offset : offset+64])
			// apply scale
			geom.NewMatrix4FromSlice(mat[:]).Mul(scaleMat).ToArray(mat[:])
			// normalize rotation
			geom.NewVector3FromSlice(mat[0:3]).Normalize().ToArray(mat[0:3])
			geom.NewVector3FromSlice(mat[4:7]).Normalize().ToArray(mat[4:7])
			geom.NewVector3FromSlice(mat[8:11]).Normalize().ToArray(mat[8:11])
			writeMatrix(data[offset:offset+64], mat)
		}
	}
	return nil
}

func readMatrix(data []byte) [16]float32 {
	var mat [16]float32
	for i := range mat {
		mat[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return mat
}

func writeMatrix(data []byte, mat [16]float32) {
	for i, v := range mat {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
}
