package converter

import (
	"errors"
	"fmt"
	"sort"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/binzume/axconv/gltfutil"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

type GLTFToPSKOption struct {
	Scale float32 // Default: 100
}

type gltfToPsk struct {
	*GLTFToPSKOption
	Warnings []string
}

func NewGLTFToPSKConverter(options *GLTFToPSKOption) *gltfToPsk {
	if options == nil {
		options = &GLTFToPSKOption{}
	}
	if options.Scale == 0 {
		options.Scale = 100
	}
	return &gltfToPsk{GLTFToPSKOption: options}
}

func (c *gltfToPsk) warn(format string, a ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, a...))
}

// nodeParents maps each node to its parent node, -1 for scene roots.
func nodeParents(doc *gltf.Document) []int {
	parents := make([]int, len(doc.Nodes))
	for i := range parents {
		parents[i] = -1
	}
	for i, n := range doc.Nodes {
		for _, child := range n.Children {
			parents[child] = i
		}
	}
	return parents
}

// nodeTransform returns the local rotation and translation of a node,
// decomposing the matrix form when present.
func nodeTransform(node *gltf.Node) (*geom.Quaternion, *geom.Vector3) {
	if node.MatrixOrDefault() != gltf.DefaultMatrix {
		t, r, _ := geom.NewMatrix4FromSlice(node.Matrix[:]).Decompose()
		return r, t
	}
	rot := node.RotationOrDefault()
	return geom.NewQuaternionFromArray(rot), geom.NewVector3FromArray(node.Translation)
}

// skinBone is one skin joint resolved to the stored bone convention:
// child rotations conjugated, positions scaled to psk units.
type skinBone struct {
	name     string
	node     int
	parent   int // -1 for the root
	rotation geom.Quaternion
	position geom.Vector3
}

// extractSkinBones lists the skin joints as stored bones, parents
// before children. The first bone is the root.
func extractSkinBones(doc *gltf.Document, skin *gltf.Skin, parents []int, scale float32) []skinBone {
	order := skinBoneOrder(doc, skin, parents)
	boneOf := map[int]int{}
	bones := make([]skinBone, len(order))
	for bi, n := range order {
		node := doc.Nodes[n]
		rot, pos := nodeTransform(node)
		name := node.Name
		if name == "" {
			name = fmt.Sprintf("bone_%d", bi)
		}
		parent := -1
		if bi > 0 {
			parent = 0
			if p := parents[n]; p >= 0 {
				if pb, ok := boneOf[p]; ok {
					parent = pb
				}
			}
			rot = rot.Inverse()
		}
		boneOf[n] = bi
		bones[bi] = skinBone{name: name, node: n, parent: parent, rotation: *rot, position: *pos.Scale(scale)}
	}
	return bones
}

// skinBoneOrder lists the skin joints depth first, parents before
// children, starting at the joints without a parent inside the skin.
func skinBoneOrder(doc *gltf.Document, skin *gltf.Skin, parents []int) []int {
	inSkin := map[int]bool{}
	for _, j := range skin.Joints {
		inSkin[int(j)] = true
	}
	visited := map[int]bool{}
	var order []int
	var walk func(n int)
	walk = func(n int) {
		if visited[n] {
			return
		}
		visited[n] = true
		order = append(order, n)
		for _, child := range doc.Nodes[n].Children {
			if inSkin[int(child)] {
				walk(int(child))
			}
		}
	}
	for _, j := range skin.Joints {
		if p := parents[int(j)]; p < 0 || !inSkin[p] {
			walk(int(j))
		}
	}
	for _, j := range skin.Joints {
		walk(int(j))
	}
	return order
}

func meshTargetNames(mesh *gltf.Mesh) []string {
	extras, ok := mesh.Extras.(map[string]interface{})
	if !ok {
		return nil
	}
	switch names := extras["targetNames"].(type) {
	case []string:
		return names
	case []interface{}:
		result := make([]string, len(names))
		for i, n := range names {
			result[i], _ = n.(string)
		}
		return result
	}
	return nil
}

// meshState carries the cross primitive tables while the psk mesh is
// assembled. Wedge attributes are buffered by wedge index because
// AddWedge merges identical wedges.
type meshState struct {
	builder    *actorx.MeshBuilder
	pointOf    map[[3]float32]int
	materialOf map[int]int // gltf material -> psk material

	wedgeCount   int
	wedgeColors  map[int]actorx.Color
	wedgeUVs     map[int]map[int]geom.Vector2 // channel -> wedge -> uv
	hasColors    bool
	pointNormals map[int]geom.Vector3
	allNormals   bool
	morphDeltas  []map[int]geom.Vector3
	morphNames   []string
}

func (c *gltfToPsk) material(s *meshState, doc *gltf.Document, prim *gltf.Primitive) int {
	gm := -1
	if prim.Material != nil {
		gm = int(*prim.Material)
	}
	if i, ok := s.materialOf[gm]; ok {
		return i
	}
	name := ""
	if gm >= 0 {
		name = doc.Materials[gm].Name
	}
	if name == "" {
		name = fmt.Sprintf("material_%d", len(s.materialOf))
	}
	i := s.builder.AddMaterial(name)
	s.materialOf[gm] = i
	return i
}

func (c *gltfToPsk) addPrimitive(s *meshState, doc *gltf.Document, mesh *gltf.Mesh, prim *gltf.Primitive, jointBones []int) error {
	scale := c.Scale

	posIndex, ok := prim.Attributes["POSITION"]
	if !ok {
		return errors.New("primitive has no POSITION")
	}
	positions, err := modeler.ReadPosition(doc, doc.Accessors[posIndex], [][3]float32{})
	if err != nil {
		return err
	}

	var texcoords [][2]float32
	if a, ok := prim.Attributes["TEXCOORD_0"]; ok {
		texcoords, err = modeler.ReadTextureCoord(doc, doc.Accessors[a], [][2]float32{})
		if err != nil {
			return err
		}
	}
	var normals [][3]float32
	if a, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = gltfutil.ReadVec3(doc, doc.Accessors[a]); err != nil {
			return err
		}
	} else {
		s.allNormals = false
	}
	var colors [][4]uint8
	if a, ok := prim.Attributes["COLOR_0"]; ok {
		if colors, err = gltfutil.ReadColors(doc, doc.Accessors[a]); err != nil {
			c.warn("vertex colors skipped: %v", err)
		} else {
			s.hasColors = true
		}
	}
	var joints [][4]uint16
	var weights [][4]float32
	if a, ok := prim.Attributes["JOINTS_0"]; ok && jointBones != nil {
		if joints, err = gltfutil.ReadJoints(doc, doc.Accessors[a]); err != nil {
			return err
		}
		if a, ok := prim.Attributes["WEIGHTS_0"]; ok {
			if weights, err = gltfutil.ReadWeights(doc, doc.Accessors[a]); err != nil {
				return err
			}
		}
	}
	extraUVs := map[int][][2]float32{}
	for ch := 1; ; ch++ {
		a, ok := prim.Attributes[fmt.Sprintf("TEXCOORD_%d", ch)]
		if !ok {
			break
		}
		uv, err := modeler.ReadTextureCoord(doc, doc.Accessors[a], [][2]float32{})
		if err != nil {
			c.warn("uv channel %d skipped: %v", ch, err)
			continue
		}
		extraUVs[ch] = uv
	}

	material := c.material(s, doc, prim)

	wedgeOf := make([]int, len(positions))
	for v := range positions {
		pi, seen := s.pointOf[positions[v]]
		if !seen {
			p := geom.Vector3{X: positions[v][0] * scale, Y: positions[v][1] * scale, Z: positions[v][2] * scale}
			pi = s.builder.AddPoint(&p)
			s.pointOf[positions[v]] = pi
			if normals != nil {
				s.pointNormals[pi] = geom.Vector3{X: normals[v][0], Y: normals[v][1], Z: normals[v][2]}
			}
			if joints != nil && weights != nil && v < len(joints) && v < len(weights) {
				for k := 0; k < 4; k++ {
					if w := weights[v][k]; w > 0 && int(joints[v][k]) < len(jointBones) {
						s.builder.AddWeight(pi, jointBones[joints[v][k]], w)
					}
				}
			}
		}
		var u, w float32
		if v < len(texcoords) {
			u, w = texcoords[v][0], texcoords[v][1]
		}
		wi := s.builder.AddWedge(pi, u, w, material)
		if wi >= s.wedgeCount {
			s.wedgeCount = wi + 1
		}
		wedgeOf[v] = wi
		if colors != nil && v < len(colors) {
			col := colors[v]
			s.wedgeColors[wi] = actorx.Color{R: col[0], G: col[1], B: col[2], A: col[3]}
		}
		for ch, uv := range extraUVs {
			if s.wedgeUVs[ch] == nil {
				s.wedgeUVs[ch] = map[int]geom.Vector2{}
			}
			if v < len(uv) {
				s.wedgeUVs[ch][wi] = geom.Vector2{X: uv[v][0], Y: uv[v][1]}
			}
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		indices, err = modeler.ReadIndices(doc, doc.Accessors[*prim.Indices], []uint32{})
		if err != nil {
			return err
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	// back to clockwise winding
	for i := 0; i+2 < len(indices); i += 3 {
		s.builder.AddFace(wedgeOf[indices[i+2]], wedgeOf[indices[i+1]], wedgeOf[indices[i]], material, 0)
	}

	// morph targets
	names := meshTargetNames(mesh)
	for t, target := range prim.Targets {
		a, ok := target["POSITION"]
		if !ok {
			continue
		}
		deltas, err := modeler.ReadPosition(doc, doc.Accessors[a], [][3]float32{})
		if err != nil {
			c.warn("morph target %d skipped: %v", t, err)
			continue
		}
		for t >= len(s.morphDeltas) {
			name := fmt.Sprintf("morph_%d", len(s.morphDeltas))
			if len(s.morphDeltas) < len(names) && names[len(s.morphDeltas)] != "" {
				name = names[len(s.morphDeltas)]
			}
			s.morphDeltas = append(s.morphDeltas, map[int]geom.Vector3{})
			s.morphNames = append(s.morphNames, name)
		}
		for v, d := range deltas {
			if d == ([3]float32{}) || v >= len(wedgeOf) {
				continue
			}
			pi := s.pointOf[positions[v]]
			if _, ok := s.morphDeltas[t][pi]; !ok {
				s.morphDeltas[t][pi] = geom.Vector3{X: d[0] * scale, Y: d[1] * scale, Z: d[2] * scale}
			}
		}
	}
	return nil
}

// finish emits the buffered optional sections in wedge and point order.
func (c *gltfToPsk) finish(s *meshState) (*actorx.PSKDocument, error) {
	if s.hasColors {
		for wi := 0; wi < s.wedgeCount; wi++ {
			col, ok := s.wedgeColors[wi]
			if !ok {
				col = actorx.Color{R: 255, G: 255, B: 255, A: 255}
			}
			s.builder.AddVertexColor(col)
		}
	}
	var channels []int
	for ch := range s.wedgeUVs {
		channels = append(channels, ch)
	}
	sort.Ints(channels)
	for _, ch := range channels {
		uvs := make([]geom.Vector2, s.wedgeCount)
		for wi, uv := range s.wedgeUVs[ch] {
			uvs[wi] = uv
		}
		s.builder.AddExtraUV(uvs)
	}
	if s.allNormals && len(s.pointNormals) > 0 {
		for pi := 0; pi < len(s.pointOf); pi++ {
			n := s.pointNormals[pi]
			s.builder.AddNormal(&n)
		}
	}
	for t, deltas := range s.morphDeltas {
		morph := actorx.Morph{Name: s.morphNames[t]}
		points := make([]int, 0, len(deltas))
		for pi := range deltas {
			points = append(points, pi)
		}
		sort.Ints(points)
		for _, pi := range points {
			morph.Deltas = append(morph.Deltas, actorx.MorphDelta{
				PositionDelta: deltas[pi],
				PointIndex:    int32(pi),
			})
		}
		if len(morph.Deltas) > 0 {
			s.builder.AddMorph(morph)
		}
	}
	return s.builder.Build()
}

// Convert extracts the first skinned mesh of a glTF document as a psk
// mesh. Without a skin, the first mesh is bound entirely to a single
// root bone.
func (c *gltfToPsk) Convert(doc *gltf.Document) (*actorx.PSKDocument, error) {
	scale := c.Scale
	parents := nodeParents(doc)

	skinIndex := -1
	var meshNodes []*gltf.Node
	for _, n := range doc.Nodes {
		if n.Mesh == nil {
			continue
		}
		if n.Skin != nil {
			if skinIndex < 0 {
				skinIndex = int(*n.Skin)
			}
			if int(*n.Skin) == skinIndex {
				meshNodes = append(meshNodes, n)
			} else {
				c.warn("mesh %s uses another skin, skipped", n.Name)
			}
		}
	}
	if skinIndex < 0 {
		for _, n := range doc.Nodes {
			if n.Mesh != nil {
				meshNodes = append(meshNodes, n)
				break
			}
		}
	}
	if len(meshNodes) == 0 {
		return nil, errors.New("no mesh in the document")
	}

	s := &meshState{
		builder:      actorx.NewMeshBuilder(),
		pointOf:      map[[3]float32]int{},
		materialOf:   map[int]int{},
		wedgeColors:  map[int]actorx.Color{},
		wedgeUVs:     map[int]map[int]geom.Vector2{},
		pointNormals: map[int]geom.Vector3{},
		allNormals:   true,
	}

	var jointBones []int
	if skinIndex >= 0 {
		skin := doc.Skins[skinIndex]
		bones := extractSkinBones(doc, skin, parents, scale)
		boneOf := map[int]int{}
		for _, sb := range bones {
			boneOf[sb.node] = s.builder.AddBone(sb.name, sb.parent, &sb.rotation, &sb.position)
		}
		jointBones = make([]int, len(skin.Joints))
		for sp, j := range skin.Joints {
			jointBones[sp] = boneOf[int(j)]
		}
	} else {
		s.builder.AddBone("root", -1, &geom.Quaternion{W: 1}, &geom.Vector3{})
	}

	for _, n := range meshNodes {
		mesh := doc.Meshes[*n.Mesh]
		for _, prim := range mesh.Primitives {
			if err := c.addPrimitive(s, doc, mesh, prim, jointBones); err != nil {
				return nil, err
			}
		}
	}
	if skinIndex < 0 {
		for pi := 0; pi < len(s.pointOf); pi++ {
			s.builder.AddWeight(pi, 0, 1)
		}
	}
	return c.finish(s)
}
