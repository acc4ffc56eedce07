package actorx

import (
	"fmt"

	"github.com/binzume/axconv/geom"
)

// SkeletonNode is a bone with resolved hierarchy links. Parent is -1
// for the root. Rotation and Position keep the stored convention:
// rotations of non-root bones are conjugated in the file, the root is
// not.
type SkeletonNode struct {
	Name     string
	Parent   int
	Children []int
	Rotation geom.Quaternion
	Position geom.Vector3
}

// Skeleton is a validated bone hierarchy built from a psk or psa bone
// list.
type Skeleton struct {
	Nodes []SkeletonNode

	// depth first from the root, parents before children.
	order []int
}

// NewSkeleton resolves parents and checks the hierarchy. The first
// bone must be the root. A negative parent index or a self reference
// on the first bone marks the root, other bones with a negative parent
// are attached to it.
func NewSkeleton(bones []Bone) (*Skeleton, error) {
	if len(bones) == 0 {
		return nil, &FormatError{Reason: "no bones"}
	}
	nodes := make([]SkeletonNode, len(bones))
	for i, b := range bones {
		parent := int(b.ParentIndex)
		if parent < 0 {
			parent = 0
		}
		if parent >= len(bones) {
			return nil, &FormatError{Reason: fmt.Sprintf("bone %q: parent index out of range: %d", b.Name, b.ParentIndex)}
		}
		if i == 0 {
			if parent != 0 {
				return nil, &FormatError{Reason: fmt.Sprintf("bone %q: first bone is not a root", b.Name)}
			}
			parent = -1
		} else if parent == i {
			return nil, &FormatError{Reason: fmt.Sprintf("bone %q: parented to itself", b.Name)}
		}
		nodes[i] = SkeletonNode{Name: b.Name, Parent: parent, Rotation: b.Rotation, Position: b.Position}
	}
	for i, node := range nodes {
		if node.Parent >= 0 {
			nodes[node.Parent].Children = append(nodes[node.Parent].Children, i)
		}
	}

	order := make([]int, 0, len(nodes))
	stack := []int{0}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		order = append(order, i)
		for c := len(nodes[i].Children) - 1; c >= 0; c-- {
			stack = append(stack, nodes[i].Children[c])
		}
	}
	if len(order) != len(nodes) {
		for i, node := range nodes {
			if !containsIndex(order, i) {
				return nil, &FormatError{Reason: fmt.Sprintf("bone %q: not reachable from the root", node.Name)}
			}
		}
	}
	return &Skeleton{Nodes: nodes, order: order}, nil
}

func containsIndex(indexes []int, i int) bool {
	for _, v := range indexes {
		if v == i {
			return true
		}
	}
	return false
}

func (s *Skeleton) Names() []string {
	names := make([]string, len(s.Nodes))
	for i, node := range s.Nodes {
		names[i] = node.Name
	}
	return names
}

// LocalRotation returns the parent relative bind rotation of a node in
// the unconjugated convention.
func (s *Skeleton) LocalRotation(i int) *geom.Quaternion {
	node := &s.Nodes[i]
	if node.Parent < 0 {
		r := node.Rotation
		return &r
	}
	return node.Rotation.Inverse()
}

// WorldTransforms composes the bind pose from the root down and
// returns the rotation and position of every node in skeleton space.
func (s *Skeleton) WorldTransforms() ([]geom.Quaternion, []geom.Vector3) {
	rotations := make([]geom.Quaternion, len(s.Nodes))
	positions := make([]geom.Vector3, len(s.Nodes))
	for _, i := range s.order {
		node := &s.Nodes[i]
		if node.Parent < 0 {
			rotations[i] = node.Rotation
			positions[i] = node.Position
			continue
		}
		parent := &rotations[node.Parent]
		rotations[i] = *parent.Mul(node.Rotation.Inverse())
		positions[i] = *positions[node.Parent].Add(parent.ApplyTo(&node.Position))
	}
	return rotations, positions
}
