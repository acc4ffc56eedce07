package converter

import (
	"testing"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/geom"
	"github.com/qmuntal/gltf"
)

// testPSKDocument builds a one triangle mesh with two bones and every
// optional section filled in.
func testPSKDocument(t *testing.T) *actorx.PSKDocument {
	b := actorx.NewMeshBuilder()

	rootRot := geom.NewEuler(0.1, 0.2, 0.3, geom.RotationOrderZXY).ToQuaternion()
	armRot := geom.NewEuler(-0.4, 0.5, 0.2, geom.RotationOrderZXY).ToQuaternion()
	root := b.AddBone("Root", -1, rootRot, &geom.Vector3{X: 1, Y: 2, Z: 3})
	arm := b.AddBone("Arm", root, armRot, &geom.Vector3{X: 10, Y: 0, Z: 0})

	p0 := b.AddPoint(&geom.Vector3{X: 0, Y: 0, Z: 0})
	p1 := b.AddPoint(&geom.Vector3{X: 16, Y: 0, Z: 0})
	p2 := b.AddPoint(&geom.Vector3{X: 0, Y: 16, Z: 0})
	mat := b.AddMaterial("body")
	w0 := b.AddWedge(p0, 0, 0, mat)
	w1 := b.AddWedge(p1, 1, 0, mat)
	w2 := b.AddWedge(p2, 0, 1, mat)
	b.AddFace(w0, w1, w2, mat, 0)

	b.AddWeight(p0, root, 1)
	b.AddWeight(p1, root, 0.5)
	b.AddWeight(p1, arm, 0.5)
	b.AddWeight(p2, arm, 1)

	b.AddNormal(&geom.Vector3{X: 0, Y: 0, Z: 1})
	b.AddNormal(&geom.Vector3{X: 0, Y: 0, Z: 1})
	b.AddNormal(&geom.Vector3{X: 1, Y: 0, Z: 0})

	b.AddVertexColor(actorx.Color{R: 255, G: 0, B: 0, A: 255})
	b.AddVertexColor(actorx.Color{R: 0, G: 255, B: 0, A: 255})
	b.AddVertexColor(actorx.Color{R: 0, G: 0, B: 255, A: 128})

	b.AddExtraUV([]geom.Vector2{{X: 0.5, Y: 0.5}, {X: 0.25, Y: 0}, {X: 0, Y: 0.25}})

	b.AddMorph(actorx.Morph{Name: "smile", Deltas: []actorx.MorphDelta{
		{PositionDelta: geom.Vector3{X: 0, Y: 0, Z: 4}, PointIndex: int32(p1)},
	}})

	doc, err := b.Build()
	if err != nil {
		t.Fatal("Build: ", err)
	}
	return doc
}

func TestPSKToGLTF(t *testing.T) {
	const eps = 0.000001
	src := testPSKDocument(t)
	conv := NewPSKToGLTFConverter(nil)
	doc, err := conv.Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}

	if len(doc.Nodes) != 3 {
		t.Fatal("nodes: ", len(doc.Nodes))
	}
	if doc.Nodes[0].Name != "Root" || doc.Nodes[1].Name != "Arm" || doc.Nodes[2].Name != "actor" {
		t.Error("node names: ", doc.Nodes[0].Name, doc.Nodes[1].Name, doc.Nodes[2].Name)
	}
	tr := doc.Nodes[0].Translation
	want := geom.Vector3{X: 0.01, Y: 0.02, Z: 0.03}
	if geom.NewVector3FromArray(tr).Sub(&want).Len() > eps {
		t.Error("root translation: ", tr)
	}
	if len(doc.Nodes[0].Children) != 1 || doc.Nodes[0].Children[0] != 1 {
		t.Error("root children: ", doc.Nodes[0].Children)
	}
	if len(doc.Scenes[0].Nodes) != 2 {
		t.Error("scene nodes: ", doc.Scenes[0].Nodes)
	}

	if len(doc.Skins) != 1 {
		t.Fatal("skins: ", len(doc.Skins))
	}
	skin := doc.Skins[0]
	if len(skin.Joints) != 2 || skin.Joints[0] != 0 || skin.Joints[1] != 1 {
		t.Error("skin joints: ", skin.Joints)
	}
	if skin.InverseBindMatrices == nil {
		t.Fatal("no inverse bind matrices")
	}
	ibm := doc.Accessors[*skin.InverseBindMatrices]
	if ibm.Type != gltf.AccessorMat4 || ibm.Count != 2 {
		t.Error("inverse bind matrices: ", ibm.Type, ibm.Count)
	}

	if len(doc.Meshes) != 1 {
		t.Fatal("meshes: ", len(doc.Meshes))
	}
	mesh := doc.Meshes[0]
	if len(mesh.Primitives) != 1 {
		t.Fatal("primitives: ", len(mesh.Primitives))
	}
	prim := mesh.Primitives[0]
	for _, attr := range []string{"POSITION", "TEXCOORD_0", "TEXCOORD_1", "NORMAL", "COLOR_0", "JOINTS_0", "WEIGHTS_0"} {
		if _, ok := prim.Attributes[attr]; !ok {
			t.Error("missing attribute: ", attr)
		}
	}
	if doc.Accessors[prim.Attributes["POSITION"]].Count != 3 {
		t.Error("positions: ", doc.Accessors[prim.Attributes["POSITION"]].Count)
	}
	if prim.Indices == nil || doc.Accessors[*prim.Indices].Count != 3 {
		t.Error("indices")
	}
	if len(prim.Targets) != 1 {
		t.Error("morph targets: ", len(prim.Targets))
	}

	if len(doc.Materials) != 1 || doc.Materials[0].Name != "body" {
		t.Error("materials: ", doc.Materials)
	}

	meshNode := doc.Nodes[2]
	if meshNode.Mesh == nil || *meshNode.Mesh != 0 {
		t.Error("mesh node mesh: ", meshNode.Mesh)
	}
	if meshNode.Skin == nil || *meshNode.Skin != 0 {
		t.Error("mesh node skin: ", meshNode.Skin)
	}
}

func TestPSKToGLTFUnlit(t *testing.T) {
	src := testPSKDocument(t)
	conv := NewPSKToGLTFConverter(&PSKToGLTFOption{ForceUnlit: true})
	doc, err := conv.Convert(src, "actor", "")
	if err != nil {
		t.Fatal("Convert: ", err)
	}
	if doc.Materials[0].Extensions["KHR_materials_unlit"] == nil {
		t.Error("material is not unlit")
	}
	found := false
	for _, ext := range doc.ExtensionsUsed {
		if ext == "KHR_materials_unlit" {
			found = true
		}
	}
	if !found {
		t.Error("extensionsUsed: ", doc.ExtensionsUsed)
	}
}

func TestReferenceName(t *testing.T) {
	cases := map[string]string{
		"Material'Package.Group.BodyMat'": "BodyMat",
		"Texture'Pack.Tex'":               "Tex",
		"plain":                           "plain",
	}
	for ref, want := range cases {
		if got := referenceName(ref); got != want {
			t.Error("referenceName: ", ref, got, want)
		}
	}
}
