package converter

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"image"
	"image/color"
	"image/jpeg"
	"image/png"

	_ "image/gif"

	"github.com/blezek/tga"
	_ "github.com/oov/psd"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// textureExts are tried in order when looking up a texture by material
// name.
var textureExts = []string{".png", ".jpg", ".jpeg", ".tga", ".bmp", ".psd"}

var unlitMaterialExt = "KHR_materials_unlit"

type PSKToGLTFOption struct {
	Scale      float32 // Default: 0.01
	ForceUnlit bool

	TextureReCompress      bool
	TextureBytesThreshold  int64 // 0: unlimited
	TextureResolutionLimit int   // 0: unlimited
	TextureScale           float32
}

type pskToGltf struct {
	*PSKToGLTFOption
	*gltf.Document
	Warnings []string

	// JointNodes maps bone index to node index. Bones are the first
	// nodes in the document, so the mapping is currently the identity.
	JointNodes []uint32
}

type textureCache struct {
	srcDir   string
	textures map[string]*textureInfo
}

type textureInfo struct {
	name string
	path string
	id   *uint32
	img  image.Image
	err  error
}

func (c *textureCache) get(name string) *textureInfo {
	if t, ok := c.textures[name]; ok {
		return t
	}
	t := &textureInfo{name: name}
	c.textures[name] = t
	return t
}

// resolve finds the texture file for a material. candidates are tried
// in order, each with every known extension.
func (c *textureCache) resolve(candidates []string) string {
	for _, name := range candidates {
		if name == "" {
			continue
		}
		if filepath.Ext(name) != "" {
			if _, err := os.Stat(filepath.Join(c.srcDir, name)); err == nil {
				return name
			}
		}
		for _, ext := range textureExts {
			if _, err := os.Stat(filepath.Join(c.srcDir, name+ext)); err == nil {
				return name + ext
			}
		}
	}
	return ""
}

func (c *textureCache) getImage(name string) (image.Image, error) {
	t := c.get(name)
	if t.img != nil || t.err != nil {
		return t.img, t.err
	}

	f, err := os.Open(filepath.Join(c.srcDir, t.name))
	if err != nil {
		t.err = err
		return nil, err
	}
	defer f.Close()

	t.img, _, t.err = image.Decode(f)
	if t.err != nil && strings.ToLower(filepath.Ext(t.name)) == ".tga" {
		// retry
		f.Seek(0, io.SeekStart)
		t.img, t.err = tga.Decode(f)
	}
	return t.img, t.err
}

func NewPSKToGLTFConverter(options *PSKToGLTFOption) *pskToGltf {
	if options == nil {
		options = &PSKToGLTFOption{}
	}
	if options.Scale == 0 {
		options.Scale = 0.01
	}
	if options.TextureScale == 0 {
		options.TextureScale = 1.0
	}
	return &pskToGltf{
		PSKToGLTFOption: options,
		Document:        gltf.NewDocument(),
	}
}

func (m *pskToGltf) warn(format string, a ...interface{}) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, a...))
}

func (m *pskToGltf) addMatrices(mat [][4][4]float32) uint32 {
	a := make([][4]float32, len(mat)*4)
	for i, m := range mat {
		a[i*4+0] = m[0]
		a[i*4+1] = m[1]
		a[i*4+2] = m[2]
		a[i*4+3] = m[3]
	}
	acc := modeler.WriteTangent(m.Document, a)
	m.Accessors[acc].Type = gltf.AccessorMat4
	m.Accessors[acc].Count /= 4
	m.BufferViews[*m.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// addBoneNodes emits one node per bone, bone i at node index i. Node
// transforms hold the parent relative bind pose in the unconjugated
// convention.
func (m *pskToGltf) addBoneNodes(skeleton *actorx.Skeleton) []uint32 {
	scale := m.Scale
	joints := make([]uint32, len(skeleton.Nodes))
	for i := range skeleton.Nodes {
		b := &skeleton.Nodes[i]
		rot := skeleton.LocalRotation(i).Normalize()
		node := &gltf.Node{
			Name:        b.Name,
			Translation: [3]float32{b.Position.X * scale, b.Position.Y * scale, b.Position.Z * scale},
			Rotation:    [4]float32{rot.X, rot.Y, rot.Z, rot.W},
		}
		joints[i] = uint32(len(m.Nodes))
		m.Nodes = append(m.Nodes, node)
	}
	for i := range skeleton.Nodes {
		b := &skeleton.Nodes[i]
		if b.Parent < 0 {
			m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, joints[i])
			continue
		}
		parent := m.Nodes[joints[b.Parent]]
		parent.Children = append(parent.Children, joints[i])
	}
	return joints
}

func (m *pskToGltf) addSkin(joints []uint32, skeleton *actorx.Skeleton) uint32 {
	scale := m.Scale
	rotations, positions := skeleton.WorldTransforms()
	invmats := make([][4][4]float32, len(joints))
	one := geom.Vector3{X: 1, Y: 1, Z: 1}
	for i := range joints {
		pos := positions[i].Scale(scale)
		bind := geom.NewTRSMatrix4(pos, &rotations[i], &one)
		inv := bind.Inverse()
		invmats[i] = [4][4]float32{
			{inv[0], inv[1], inv[2], inv[3]},
			{inv[4], inv[5], inv[6], inv[7]},
			{inv[8], inv[9], inv[10], inv[11]},
			{inv[12], inv[13], inv[14], inv[15]},
		}
	}
	m.Skins = append(m.Skins, &gltf.Skin{
		Joints:              joints,
		Skeleton:            gltf.Index(joints[0]),
		InverseBindMatrices: gltf.Index(m.addMatrices(invmats)),
	})
	return uint32(len(m.Skins) - 1)
}

// getWeights builds the per point joint and weight attributes. A point
// keeps its four largest influences, renormalized when some were
// dropped.
func (m *pskToGltf) getWeights(doc *actorx.PSKDocument) ([][4]uint16, [][4]float32) {
	if len(doc.Weights) == 0 {
		return nil, nil
	}
	vs := len(doc.Points)
	joints := make([][4]uint16, vs)
	weights := make([][4]float32, vs)
	njoint := make([]int, vs)
	for _, bw := range doc.Weights {
		v := int(bw.PointIndex)
		jindex := njoint[v]
		njoint[v]++
		if jindex >= 4 {
			// Overwrite smallest weight.
			minWeight := bw.Weight
			jindex = -1
			for i, w := range weights[v] {
				if w < minWeight {
					minWeight = w
					jindex = i
				}
			}
			if jindex < 0 {
				continue
			}
		}
		joints[v][jindex] = uint16(bw.BoneIndex)
		weights[v][jindex] = bw.Weight
	}
	for v := range weights {
		if njoint[v] > 4 {
			m.warn("point %d has %d bone influences, kept the 4 largest", v, njoint[v])
			var sum float32
			for _, w := range weights[v] {
				sum += w
			}
			if sum > 0 {
				for i := range weights[v] {
					weights[v][i] /= sum
				}
			}
		}
	}
	return joints, weights
}

func (m *pskToGltf) convertMesh(doc *actorx.PSKDocument, name string) *gltf.Mesh {
	scale := m.Scale

	vertexes := make([][3]float32, len(doc.Wedges))
	texcood0 := make([][2]float32, len(doc.Wedges))
	var normals [][3]float32
	if len(doc.Normals) > 0 {
		normals = make([][3]float32, len(doc.Wedges))
	}
	var colors [][4]uint8
	if len(doc.VertexColors) > 0 {
		colors = make([][4]uint8, len(doc.Wedges))
	}
	pointJoints, pointWeights := m.getWeights(doc)
	var joints0 [][4]uint16
	var weights0 [][4]float32
	if pointJoints != nil {
		joints0 = make([][4]uint16, len(doc.Wedges))
		weights0 = make([][4]float32, len(doc.Wedges))
	}

	for i, w := range doc.Wedges {
		p := &doc.Points[w.PointIndex]
		vertexes[i] = [3]float32{p.X * scale, p.Y * scale, p.Z * scale}
		texcood0[i] = [2]float32{w.U, w.V}
		if normals != nil {
			n := doc.Normals[w.PointIndex]
			normals[i] = [3]float32{n.X, n.Y, n.Z}
		}
		if colors != nil {
			c := doc.VertexColors[i]
			colors[i] = [4]uint8{c.R, c.G, c.B, c.A}
		}
		if joints0 != nil {
			joints0[i] = pointJoints[w.PointIndex]
			weights0[i] = pointWeights[w.PointIndex]
		}
	}

	var materials []int
	indices := map[int][]uint32{}
	for _, f := range doc.Faces {
		mat := int(f.MaterialIndex)
		if _, exists := indices[mat]; !exists {
			materials = append(materials, mat)
		}
		// psk faces wind clockwise.
		indices[mat] = append(indices[mat], f.WedgeIndexes[2], f.WedgeIndexes[1], f.WedgeIndexes[0])
	}

	attributes := map[string]uint32{
		"POSITION":   modeler.WritePosition(m.Document, vertexes),
		"TEXCOORD_0": modeler.WriteTextureCoord(m.Document, texcood0),
	}
	if normals != nil {
		attributes["NORMAL"] = modeler.WriteNormal(m.Document, normals)
	}
	if colors != nil {
		attributes["COLOR_0"] = modeler.WriteColor(m.Document, colors)
	}
	for ch, uvs := range doc.ExtraUVs {
		uv := make([][2]float32, len(uvs))
		for i, v := range uvs {
			uv[i] = [2]float32{v.X, v.Y}
		}
		attributes[fmt.Sprintf("TEXCOORD_%d", ch+1)] = modeler.WriteTextureCoord(m.Document, uv)
	}
	if joints0 != nil {
		attributes["JOINTS_0"] = modeler.WriteJoints(m.Document, joints0)
		attributes["WEIGHTS_0"] = modeler.WriteWeights(m.Document, weights0)
	}

	// morph
	var targets []map[string]uint32
	var targetNames []string
	for _, morph := range doc.Morphs {
		deltas := make([]geom.Vector3, len(doc.Points))
		for _, d := range morph.Deltas {
			deltas[d.PointIndex] = d.PositionDelta
		}
		mv := make([][3]float32, len(doc.Wedges))
		for i, w := range doc.Wedges {
			d := &deltas[w.PointIndex]
			mv[i] = [3]float32{d.X * scale, d.Y * scale, d.Z * scale}
		}
		target := map[string]uint32{
			"POSITION": modeler.WritePosition(m.Document, mv),
		}
		targets = append(targets, target)
		targetNames = append(targetNames, morph.Name)
	}

	var primitives []*gltf.Primitive
	for _, mat := range materials {
		prim := &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(m.Document, indices[mat])),
			Attributes: attributes,
			Targets:    targets,
		}
		if mat < len(doc.Materials) {
			prim.Material = gltf.Index(uint32(mat))
		}
		primitives = append(primitives, prim)
	}
	mesh := &gltf.Mesh{
		Name:       name,
		Primitives: primitives,
	}
	if len(targetNames) > 0 {
		mesh.Extras = map[string]interface{}{"targetNames": targetNames}
	}
	return mesh
}

func (m *pskToGltf) hasAlpha(texture string, textures *textureCache) bool {
	if texture == "" || strings.HasSuffix(texture, ".jpg") || strings.HasSuffix(texture, ".bmp") {
		return false
	}
	img, err := textures.getImage(texture)
	if err != nil {
		return false
	}
	switch img.ColorModel() {
	case color.YCbCrModel, color.CMYKModel:
		return false
	case color.RGBAModel:
		return !img.(*image.RGBA).Opaque()
	}
	return false
}

func scaleTexture(texture string, mime string, textures *textureCache, scale float32, limit int) (io.Reader, error) {
	img, err := textures.getImage(texture)
	if err != nil {
		return nil, err
	}
	rect := img.Bounds()

	if limit > 0 {
		sz := int(float32(rect.Dx()) * scale)
		if sz > limit {
			scale *= float32(limit) / float32(sz)
		}
	}

	if scale != 1.0 {
		dst := image.NewRGBA(image.Rect(0, 0, int(float32(rect.Dx())*scale), int(float32(rect.Dy())*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, rect, draw.Over, nil)
		img = dst
	}

	w := new(bytes.Buffer)
	if mime == "image/png" {
		err = png.Encode(w, img)
	} else {
		err = jpeg.Encode(w, img, nil)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (m *pskToGltf) addTexture(texture string, textures *textureCache) (*uint32, error) {
	t := textures.get(texture)
	if t.id != nil {
		return t.id, nil
	}
	ext := strings.ToLower(filepath.Ext(texture))

	encode := m.TextureReCompress
	if m.TextureBytesThreshold > 0 {
		stat, err := os.Stat(filepath.Join(textures.srcDir, texture))
		if err != nil {
			return nil, err
		}
		if stat.Size() > m.TextureBytesThreshold {
			encode = true
		}
	}

	var mimeType string
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	} else if ext == ".png" {
		mimeType = "image/png"
	} else {
		mimeType = "image/png"
		encode = true
	}

	var r io.Reader
	if encode {
		r2, err := scaleTexture(texture, mimeType, textures, m.TextureScale, m.TextureResolutionLimit)
		if err != nil {
			return nil, err
		}
		r = r2
	} else {
		f, err := os.Open(filepath.Join(textures.srcDir, texture))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	img, err := modeler.WriteImage(m.Document, filepath.Base(texture), mimeType, r)
	if err != nil {
		return nil, err
	}
	m.Buffers[0].ByteLength = uint32(len(m.Buffers[0].Data)) // avoid AddImage bug
	m.Textures = append(m.Textures,
		&gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(img)})

	t.id = gltf.Index(uint32(len(m.Textures)) - 1)

	return t.id, nil
}

// referenceName extracts a texture candidate from a material reference
// like "Material'Package.Group.Name'".
func referenceName(ref string) string {
	if i := strings.IndexByte(ref, '\''); i >= 0 {
		ref = strings.Trim(ref[i:], "'")
	}
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		ref = ref[i+1:]
	}
	return ref
}

func (m *pskToGltf) convertMaterial(doc *actorx.PSKDocument, index int, textures *textureCache) *gltf.Material {
	mat := &doc.Materials[index]
	var rf float32 = 0.9
	var mf float32 = 0
	mm := &gltf.Material{
		Name: mat.Name,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &[4]float32{1, 1, 1, 1},
			RoughnessFactor: &rf,
			MetallicFactor:  &mf,
		},
	}
	if m.ForceUnlit {
		mm.Extensions = map[string]interface{}{unlitMaterialExt: map[string]string{}}
	}

	candidates := []string{mat.Name}
	if index < len(doc.MaterialReferences) {
		candidates = append(candidates, referenceName(doc.MaterialReferences[index]))
	}
	texture := textures.resolve(candidates)
	if texture == "" {
		return mm
	}
	if m.hasAlpha(texture, textures) {
		mm.AlphaMode = gltf.AlphaBlend
	}
	if tex, err := m.addTexture(texture, textures); err == nil {
		mm.PBRMetallicRoughness.BaseColorTexture = &gltf.TextureInfo{
			Index: *tex,
		}
	} else {
		m.warn("texture %s: %v", texture, err)
	}
	return mm
}

// Convert builds a skinned glTF document from a psk mesh. textureDir
// is searched for textures named after each material.
func (m *pskToGltf) Convert(doc *actorx.PSKDocument, name, textureDir string) (*gltf.Document, error) {
	skeleton, err := actorx.NewSkeleton(doc.Bones)
	if err != nil {
		return nil, err
	}

	joints := m.addBoneNodes(skeleton)
	m.JointNodes = joints

	mesh := m.convertMesh(doc, name)
	node := &gltf.Node{Name: name}
	if len(mesh.Primitives) > 0 {
		node.Mesh = gltf.Index(uint32(len(m.Document.Meshes)))
		m.Document.Meshes = append(m.Document.Meshes, mesh)
	}
	if len(doc.Weights) > 0 {
		node.Skin = gltf.Index(m.addSkin(joints, skeleton))
	}
	m.Scenes[0].Nodes = append(m.Scenes[0].Nodes, uint32(len(m.Nodes)))
	m.Nodes = append(m.Nodes, node)

	textures := &textureCache{srcDir: textureDir, textures: map[string]*textureInfo{}}
	useUnlit := false
	for i := range doc.Materials {
		mm := m.convertMaterial(doc, i, textures)
		if mm.Extensions[unlitMaterialExt] != nil {
			useUnlit = true
		}
		m.Document.Materials = append(m.Document.Materials, mm)
	}
	if useUnlit {
		m.ExtensionsUsed = append(m.ExtensionsUsed, unlitMaterialExt)
	}

	if len(m.Document.Textures) > 0 {
		m.Document.Samplers = []*gltf.Sampler{{}}
	}

	return m.Document, nil
}
