package actorx

import (
	"math"
	"testing"

	"github.com/binzume/axconv/geom"
)

func TestNewSkeleton(t *testing.T) {
	bones := []Bone{
		{Name: "root", ParentIndex: 0},
		{Name: "spine", ParentIndex: 0},
		{Name: "head", ParentIndex: 1},
		{Name: "loose", ParentIndex: -1},
	}
	s, err := NewSkeleton(bones)
	if err != nil {
		t.Fatal("NewSkeleton: ", err)
	}
	if s.Nodes[0].Parent != -1 || s.Nodes[1].Parent != 0 || s.Nodes[2].Parent != 1 {
		t.Error("parents: ", s.Nodes[0].Parent, s.Nodes[1].Parent, s.Nodes[2].Parent)
	}
	// A negative parent on a non-first bone attaches it to the root.
	if s.Nodes[3].Parent != 0 {
		t.Error("loose parent: ", s.Nodes[3].Parent)
	}
	if len(s.Nodes[0].Children) != 2 || s.Nodes[0].Children[0] != 1 || s.Nodes[0].Children[1] != 3 {
		t.Error("root children: ", s.Nodes[0].Children)
	}
	names := s.Names()
	if len(names) != 4 || names[2] != "head" {
		t.Error("names: ", names)
	}
}

func TestNewSkeletonErrors(t *testing.T) {
	cases := [][]Bone{
		nil,
		{{Name: "a", ParentIndex: 1}, {Name: "b", ParentIndex: 0}},
		{{Name: "a", ParentIndex: 0}, {Name: "b", ParentIndex: 7}},
		{{Name: "a", ParentIndex: 0}, {Name: "b", ParentIndex: 1}},
		{{Name: "a", ParentIndex: 0}, {Name: "b", ParentIndex: 2}, {Name: "c", ParentIndex: 1}},
	}
	for i, bones := range cases {
		_, err := NewSkeleton(bones)
		if err == nil {
			t.Error("case ", i, ": invalid hierarchy accepted")
		} else if _, ok := err.(*FormatError); !ok {
			t.Error("case ", i, ": want FormatError, got ", err)
		}
	}
}

func TestSkeletonWorldTransforms(t *testing.T) {
	const eps = 0.00001
	rootRot := geom.NewEuler(0, 0, math.Pi/2, geom.RotationOrderZXY).ToQuaternion()
	childRel := geom.NewEuler(math.Pi/2, 0, 0, geom.RotationOrderZXY).ToQuaternion()
	bones := []Bone{
		{Name: "root", ParentIndex: -1, Rotation: *rootRot, Position: geom.Vector3{Z: 1}},
		{Name: "arm", ParentIndex: 0, Rotation: *childRel.Inverse(), Position: geom.Vector3{X: 1}},
	}
	s, err := NewSkeleton(bones)
	if err != nil {
		t.Fatal("NewSkeleton: ", err)
	}
	rotations, positions := s.WorldTransforms()

	if rotations[0].Sub(rootRot).Len() > eps {
		t.Error("root rotation: ", rotations[0], *rootRot)
	}
	wantRot := rootRot.Mul(childRel)
	if rotations[1].Sub(wantRot).Len() > eps {
		t.Error("arm rotation: ", rotations[1], *wantRot)
	}
	wantPos := geom.Vector3{X: 0, Y: 1, Z: 1}
	if positions[1].Sub(&wantPos).Len() > eps {
		t.Error("arm position: ", positions[1], wantPos)
	}
}

func TestSkeletonLocalRotation(t *testing.T) {
	const eps = 0.00001
	rootRot := geom.NewEuler(0.2, -0.4, 0.9, geom.RotationOrderZXY).ToQuaternion()
	childRel := geom.NewEuler(1.1, 0.3, -0.5, geom.RotationOrderZXY).ToQuaternion()
	bones := []Bone{
		{Name: "root", ParentIndex: 0, Rotation: *rootRot},
		{Name: "arm", ParentIndex: 0, Rotation: *childRel.Inverse()},
	}
	s, err := NewSkeleton(bones)
	if err != nil {
		t.Fatal("NewSkeleton: ", err)
	}
	if s.LocalRotation(0).Sub(rootRot).Len() > eps {
		t.Error("root: ", *s.LocalRotation(0), *rootRot)
	}
	if s.LocalRotation(1).Sub(childRel).Len() > eps {
		t.Error("arm: ", *s.LocalRotation(1), *childRel)
	}
}
