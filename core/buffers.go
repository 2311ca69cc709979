// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"unsafe"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/model"
)

// MeshBuffers holds the device buffers for one mesh. Memory is host
// visible and coherent, uploaded once at creation.
type MeshBuffers struct {
	devctx *DeviceContext

	vertexBuffer vk.Buffer
	vertexMemory vk.DeviceMemory
	indexBuffer  vk.Buffer
	indexMemory  vk.DeviceMemory
	indexCount   uint32
}

// NewMeshBuffers uploads the mesh into freshly allocated vertex and
// index buffers.
func NewMeshBuffers(devctx *DeviceContext, mesh model.Mesh) (*MeshBuffers, error) {
	if len(mesh.Vertices) == 0 || len(mesh.Indices) == 0 {
		return nil, errors.New("core.NewMeshBuffers(): empty mesh")
	}
	buffers := &MeshBuffers{
		devctx:     devctx,
		indexCount: uint32(len(mesh.Indices)),
	}

	vertexSize := vk.DeviceSize(int(unsafe.Sizeof(model.Vertex{})) * len(mesh.Vertices))
	var err error
	buffers.vertexBuffer, buffers.vertexMemory, err = createBuffer(
		devctx, vertexSize, vk.BufferUsageFlags(vk.BufferUsageVertexBufferBit))
	if err != nil {
		return nil, err
	}
	var vertexMapped unsafe.Pointer
	if err := vk.Error(vk.MapMemory(devctx.Device(), buffers.vertexMemory, 0, vertexSize, 0, &vertexMapped)); err != nil {
		buffers.Destroy()
		return nil, errors.New("vk.MapMemory(): " + err.Error())
	}
	vertexCastMemory := *(*[]model.Vertex)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(vertexMapped),
		Cap:  len(mesh.Vertices),
		Len:  len(mesh.Vertices),
	}))
	copy(vertexCastMemory, mesh.Vertices[:])
	vk.UnmapMemory(devctx.Device(), buffers.vertexMemory)

	indexSize := vk.DeviceSize(int(unsafe.Sizeof(mesh.Indices[0])) * len(mesh.Indices))
	buffers.indexBuffer, buffers.indexMemory, err = createBuffer(
		devctx, indexSize, vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit))
	if err != nil {
		buffers.Destroy()
		return nil, err
	}
	var indexMapped unsafe.Pointer
	if err := vk.Error(vk.MapMemory(devctx.Device(), buffers.indexMemory, 0, indexSize, 0, &indexMapped)); err != nil {
		buffers.Destroy()
		return nil, errors.New("vk.MapMemory(): " + err.Error())
	}
	indexCastMemory := *(*[]uint32)(unsafe.Pointer(&sliceHeader{
		Data: uintptr(indexMapped),
		Cap:  len(mesh.Indices),
		Len:  len(mesh.Indices),
	}))
	copy(indexCastMemory, mesh.Indices[:])
	vk.UnmapMemory(devctx.Device(), buffers.indexMemory)

	return buffers, nil
}

func createBuffer(devctx *DeviceContext, size vk.DeviceSize, usage vk.BufferUsageFlags) (vk.Buffer, vk.DeviceMemory, error) {
	bci := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        size,
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := vk.Error(vk.CreateBuffer(devctx.Device(), &bci, nil, &buffer)); err != nil {
		return buffer, vk.NullDeviceMemory, errors.New("vk.CreateBuffer(): " + err.Error())
	}

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(devctx.Device(), buffer, &requirements)
	requirements.Deref()

	memoryType, err := findMemoryType(devctx.Physical(), requirements.MemoryTypeBits,
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		vk.DestroyBuffer(devctx.Device(), buffer, nil)
		return buffer, vk.NullDeviceMemory, err
	}

	mai := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: memoryType,
	}
	var memory vk.DeviceMemory
	if err := vk.Error(vk.AllocateMemory(devctx.Device(), &mai, nil, &memory)); err != nil {
		vk.DestroyBuffer(devctx.Device(), buffer, nil)
		return buffer, memory, errors.New("vk.AllocateMemory(): " + err.Error())
	}
	if err := vk.Error(vk.BindBufferMemory(devctx.Device(), buffer, memory, 0)); err != nil {
		vk.FreeMemory(devctx.Device(), memory, nil)
		vk.DestroyBuffer(devctx.Device(), buffer, nil)
		return buffer, memory, errors.New("vk.BindBufferMemory(): " + err.Error())
	}
	return buffer, memory, nil
}

func findMemoryType(device vk.PhysicalDevice, typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, error) {
	var memory vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(device, &memory)
	memory.Deref()

	for idx := uint32(0); idx < memory.MemoryTypeCount; idx++ {
		memory.MemoryTypes[idx].Deref()
		if typeBits&(1<<idx) != 0 &&
			memory.MemoryTypes[idx].PropertyFlags&properties == properties {
			return idx, nil
		}
	}
	return 0, errors.New("core.findMemoryType(): no host visible memory type")
}

// VertexBuffer returns the vertex buffer handle.
func (m *MeshBuffers) VertexBuffer() vk.Buffer {
	return m.vertexBuffer
}

// IndexBuffer returns the index buffer handle.
func (m *MeshBuffers) IndexBuffer() vk.Buffer {
	return m.indexBuffer
}

// IndexCount returns the number of indices to draw.
func (m *MeshBuffers) IndexCount() uint32 {
	return m.indexCount
}

// Destroy implements interface.
func (m *MeshBuffers) Destroy() {
	device := m.devctx.Device()
	if m.vertexBuffer != vk.NullBuffer {
		vk.DestroyBuffer(device, m.vertexBuffer, nil)
		m.vertexBuffer = vk.NullBuffer
	}
	if m.vertexMemory != vk.NullDeviceMemory {
		vk.FreeMemory(device, m.vertexMemory, nil)
		m.vertexMemory = vk.NullDeviceMemory
	}
	if m.indexBuffer != vk.NullBuffer {
		vk.DestroyBuffer(device, m.indexBuffer, nil)
		m.indexBuffer = vk.NullBuffer
	}
	if m.indexMemory != vk.NullDeviceMemory {
		vk.FreeMemory(device, m.indexMemory, nil)
		m.indexMemory = vk.NullDeviceMemory
	}
}
