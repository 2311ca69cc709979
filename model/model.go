// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package model defines the vertex layout and mesh types the
// rendering core consumes, plus a couple of builtin meshes for
// bring-up and testing.
package model

import (
	"unsafe"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Vertex is a model vertex
type Vertex struct {
	Pos      glm.Vec3
	Color    glm.Vec4
	Texcoord glm.Vec2
}

// Mesh is an indexed triangle list ready for upload
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Uniform defines a model-view-projection object
type Uniform struct {
	Model      glm.Mat4
	View       glm.Mat4
	Projection glm.Mat4
}

// MVP collapses the uniform into the single matrix the vertex stage
// receives as a push constant.
func (u Uniform) MVP() glm.Mat4 {
	return u.Projection.Mul4(u.View).Mul4(u.Model)
}

// DefaultUniform returns a camera looking at the origin with a
// perspective projection for the given aspect ratio.
func DefaultUniform(aspect float32) Uniform {
	uniform := Uniform{
		Model:      glm.Ident4(),
		View:       glm.LookAt(2, 2, 2, 0, 0, 0, 0, 0, 1),
		Projection: glm.Perspective(glm.DegToRad(45), aspect, 0.1, 10),
	}
	uniform.Projection[5] *= -1 // Flip from OpenGl to Vulkan projection
	return uniform
}

// VertexBindingDescriptions return Vulkan Vertex descriptors
func VertexBindingDescriptions() []vk.VertexInputBindingDescription {
	return []vk.VertexInputBindingDescription{{
		Binding:   0,
		Stride:    uint32(unsafe.Sizeof(Vertex{})),
		InputRate: vk.VertexInputRateVertex,
	}}
}

// VertexAttributeDescriptions return Vulkan attribute descriptors
func VertexAttributeDescriptions() []vk.VertexInputAttributeDescription {
	return []vk.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   vk.FormatR32g32b32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Pos)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   vk.FormatR32g32b32a32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Color)),
		},
		{
			Binding:  0,
			Location: 2,
			Format:   vk.FormatR32g32Sfloat,
			Offset:   uint32(unsafe.Offsetof(Vertex{}.Texcoord)),
		},
	}
}

// Triangle returns a single colored triangle on the Z plane.
func Triangle() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Pos: glm.Vec3{0, -0.5, 0}, Color: glm.Vec4{1, 0, 0, 1}, Texcoord: glm.Vec2{0.5, 0}},
			{Pos: glm.Vec3{0.5, 0.5, 0}, Color: glm.Vec4{0, 1, 0, 1}, Texcoord: glm.Vec2{1, 1}},
			{Pos: glm.Vec3{-0.5, 0.5, 0}, Color: glm.Vec4{0, 0, 1, 1}, Texcoord: glm.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2},
	}
}

// Quad returns a unit quad built from two triangles.
func Quad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{Pos: glm.Vec3{-0.5, -0.5, 0}, Color: glm.Vec4{1, 0, 0, 1}, Texcoord: glm.Vec2{0, 0}},
			{Pos: glm.Vec3{0.5, -0.5, 0}, Color: glm.Vec4{0, 1, 0, 1}, Texcoord: glm.Vec2{1, 0}},
			{Pos: glm.Vec3{0.5, 0.5, 0}, Color: glm.Vec4{0, 0, 1, 1}, Texcoord: glm.Vec2{1, 1}},
			{Pos: glm.Vec3{-0.5, 0.5, 0}, Color: glm.Vec4{1, 1, 1, 1}, Texcoord: glm.Vec2{0, 1}},
		},
		Indices: []uint32{0, 1, 2, 2, 3, 0},
	}
}
