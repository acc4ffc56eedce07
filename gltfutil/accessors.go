package gltfutil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/qmuntal/gltf"
)

func componentByteSize(c gltf.ComponentType) int {
	switch c {
	case gltf.ComponentByte, gltf.ComponentUbyte:
		return 1
	case gltf.ComponentShort, gltf.ComponentUshort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	}
	return 0
}

func componentCount(t gltf.AccessorType) int {
	switch t {
	case gltf.AccessorScalar:
		return 1
	case gltf.AccessorVec2:
		return 2
	case gltf.AccessorVec3:
		return 3
	case gltf.AccessorVec4:
		return 4
	case gltf.AccessorMat2:
		return 4
	case gltf.AccessorMat3:
		return 9
	case gltf.AccessorMat4:
		return 16
	}
	return 0
}

// accessorBytes copies the elements of an accessor into a tightly
// packed byte slice, resolving the buffer view stride.
func accessorBytes(doc *gltf.Document, acc *gltf.Accessor) ([]byte, error) {
	if acc.Sparse != nil {
		return nil, errors.New("sparse accessor is not supported")
	}
	if acc.BufferView == nil {
		return nil, errors.New("accessor has no buffer view")
	}
	bv := doc.BufferViews[*acc.BufferView]
	data := doc.Buffers[bv.Buffer].Data

	elementSize := componentByteSize(acc.ComponentType) * componentCount(acc.Type)
	if elementSize == 0 {
		return nil, fmt.Errorf("unsupported accessor layout: %s %d", acc.Type, acc.ComponentType)
	}
	stride := int(bv.ByteStride)
	if stride == 0 {
		stride = elementSize
	}
	offset := int(bv.ByteOffset + acc.ByteOffset)
	count := int(acc.Count)
	if count == 0 {
		return nil, nil
	}
	if offset+(count-1)*stride+elementSize > len(data) {
		return nil, fmt.Errorf("accessor overruns its buffer: %d elements at %d", count, offset)
	}

	result := make([]byte, count*elementSize)
	for i := 0; i < count; i++ {
		copy(result[i*elementSize:(i+1)*elementSize], data[offset+i*stride:])
	}
	return result, nil
}

func readFloatElements(doc *gltf.Document, acc *gltf.Accessor, want gltf.AccessorType, out interface{}) error {
	if acc.Type != want || acc.ComponentType != gltf.ComponentFloat {
		return fmt.Errorf("accessor is not %s FLOAT: %s %d", want, acc.Type, acc.ComponentType)
	}
	data, err := accessorBytes(doc, acc)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, out)
}

// ReadFloats reads a SCALAR float accessor, as used for animation
// key times.
func ReadFloats(doc *gltf.Document, acc *gltf.Accessor) ([]float32, error) {
	result := make([]float32, int(acc.Count))
	if err := readFloatElements(doc, acc, gltf.AccessorScalar, result); err != nil {
		return nil, err
	}
	return result, nil
}

func ReadVec2(doc *gltf.Document, acc *gltf.Accessor) ([][2]float32, error) {
	result := make([][2]float32, int(acc.Count))
	if err := readFloatElements(doc, acc, gltf.AccessorVec2, result); err != nil {
		return nil, err
	}
	return result, nil
}

func ReadVec3(doc *gltf.Document, acc *gltf.Accessor) ([][3]float32, error) {
	result := make([][3]float32, int(acc.Count))
	if err := readFloatElements(doc, acc, gltf.AccessorVec3, result); err != nil {
		return nil, err
	}
	return result, nil
}

func ReadVec4(doc *gltf.Document, acc *gltf.Accessor) ([][4]float32, error) {
	result := make([][4]float32, int(acc.Count))
	if err := readFloatElements(doc, acc, gltf.AccessorVec4, result); err != nil {
		return nil, err
	}
	return result, nil
}

// ReadJoints reads a JOINTS_0 attribute accessor. Both of the legal
// component types are widened to uint16.
func ReadJoints(doc *gltf.Document, acc *gltf.Accessor) ([][4]uint16, error) {
	if acc.Type != gltf.AccessorVec4 {
		return nil, fmt.Errorf("joints accessor is not VEC4: %s", acc.Type)
	}
	data, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	result := make([][4]uint16, int(acc.Count))
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		for i := range result {
			for c := 0; c < 4; c++ {
				result[i][c] = uint16(data[i*4+c])
			}
		}
	case gltf.ComponentUshort:
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, result); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported joints component type: %d", acc.ComponentType)
	}
	return result, nil
}

// ReadWeights reads a WEIGHTS_0 attribute accessor. Normalized integer
// weights are converted to float.
func ReadWeights(doc *gltf.Document, acc *gltf.Accessor) ([][4]float32, error) {
	if acc.Type != gltf.AccessorVec4 {
		return nil, fmt.Errorf("weights accessor is not VEC4: %s", acc.Type)
	}
	if acc.ComponentType == gltf.ComponentFloat {
		return ReadVec4(doc, acc)
	}
	data, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	result := make([][4]float32, int(acc.Count))
	switch acc.ComponentType {
	case gltf.ComponentUbyte:
		for i := range result {
			for c := 0; c < 4; c++ {
				result[i][c] = float32(data[i*4+c]) / 255
			}
		}
	case gltf.ComponentUshort:
		for i := range result {
			for c := 0; c < 4; c++ {
				result[i][c] = float32(binary.LittleEndian.Uint16(data[(i*4+c)*2:])) / 65535
			}
		}
	default:
		return nil, fmt.Errorf("unsupported weights component type: %d", acc.ComponentType)
	}
	return result, nil
}

// ReadColors reads a COLOR_0 attribute accessor as 8 bit RGBA. A VEC3
// accessor yields an opaque alpha.
func ReadColors(doc *gltf.Document, acc *gltf.Accessor) ([][4]uint8, error) {
	n := componentCount(acc.Type)
	if n != 3 && n != 4 {
		return nil, fmt.Errorf("color accessor is not VEC3 or VEC4: %s", acc.Type)
	}
	data, err := accessorBytes(doc, acc)
	if err != nil {
		return nil, err
	}
	result := make([][4]uint8, int(acc.Count))
	for i := range result {
		result[i][3] = 255
		for c := 0; c < n; c++ {
			switch acc.ComponentType {
			case gltf.ComponentFloat:
				f := math.Float32frombits(binary.LittleEndian.Uint32(data[(i*n+c)*4:]))
				if f < 0 {
					f = 0
				} else if f > 1 {
					f = 1
				}
				result[i][c] = uint8(f*255 + 0.5)
			case gltf.ComponentUbyte:
				result[i][c] = data[i*n+c]
			case gltf.ComponentUshort:
				result[i][c] = uint8(binary.LittleEndian.Uint16(data[(i*n+c)*2:]) >> 8)
			default:
				return nil, fmt.Errorf("unsupported color component type: %d", acc.ComponentType)
			}
		}
	}
	return result, nil
}
