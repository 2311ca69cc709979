// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"unsafe"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
)

// FrameRecorder owns the command pool and one primary command buffer
// per frame slot. A slot's buffer is recorded fresh every frame, so
// the pool is created resettable.
type FrameRecorder struct {
	devctx   *DeviceContext
	pipeline *PipelineResources
	mesh     *MeshBuffers

	pool    vk.CommandPool
	buffers []vk.CommandBuffer
}

// NewFrameRecorder allocates slots command buffers on a fresh pool
// bound to the graphics queue family.
func NewFrameRecorder(devctx *DeviceContext, pipeline *PipelineResources, mesh *MeshBuffers, slots int) (*FrameRecorder, error) {
	cpci := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: devctx.Families().Graphics,
	}
	var pool vk.CommandPool
	if err := vk.Error(vk.CreateCommandPool(devctx.Device(), &cpci, nil, &pool)); err != nil {
		return nil, errors.New("vk.CreateCommandPool(): " + err.Error())
	}

	cbai := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(slots),
	}
	buffers := make([]vk.CommandBuffer, slots)
	if err := vk.Error(vk.AllocateCommandBuffers(devctx.Device(), &cbai, buffers)); err != nil {
		vk.DestroyCommandPool(devctx.Device(), pool, nil)
		return nil, errors.New("vk.AllocateCommandBuffers(): " + err.Error())
	}

	return &FrameRecorder{
		devctx:   devctx,
		pipeline: pipeline,
		mesh:     mesh,
		pool:     pool,
		buffers:  buffers,
	}, nil
}

// Record implements Recorder. It resets the slot's command buffer and
// records a full render pass drawing the mesh into the swapchain
// image at imageIndex, pushing the frame's MVP as a push constant.
func (r *FrameRecorder) Record(slot int, imageIndex uint32, frame FrameData) (vk.CommandBuffer, error) {
	buffer := r.buffers[slot]
	if err := vk.Error(vk.ResetCommandBuffer(buffer, 0)); err != nil {
		return nil, errors.New("vk.ResetCommandBuffer(): " + err.Error())
	}

	cbbi := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if err := vk.Error(vk.BeginCommandBuffer(buffer, &cbbi)); err != nil {
		return nil, errors.New("vk.BeginCommandBuffer(): " + err.Error())
	}

	extent := r.pipeline.Extent()

	var clearValue vk.ClearValue
	clearValue.SetColor(frame.ClearColor[:])
	rpbi := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  r.pipeline.RenderPass(),
		Framebuffer: r.pipeline.Framebuffer(imageIndex),
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: 1,
		PClearValues:    []vk.ClearValue{clearValue},
	}
	vk.CmdBeginRenderPass(buffer, &rpbi, vk.SubpassContentsInline)
	vk.CmdBindPipeline(buffer, vk.PipelineBindPointGraphics, r.pipeline.Handle())

	vk.CmdSetViewport(buffer, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(buffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}})

	mvp := frame.MVP
	vk.CmdPushConstants(buffer, r.pipeline.Layout(),
		vk.ShaderStageFlags(vk.ShaderStageVertexBit), 0,
		uint32(unsafe.Sizeof(glm.Mat4{})), unsafe.Pointer(&mvp))

	vk.CmdBindVertexBuffers(buffer, 0, 1, []vk.Buffer{r.mesh.VertexBuffer()}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(buffer, r.mesh.IndexBuffer(), 0, vk.IndexTypeUint32)
	vk.CmdDrawIndexed(buffer, r.mesh.IndexCount(), 1, 0, 0, 0)

	vk.CmdEndRenderPass(buffer)
	if err := vk.Error(vk.EndCommandBuffer(buffer)); err != nil {
		return nil, errors.New("vk.EndCommandBuffer(): " + err.Error())
	}
	return buffer, nil
}

// Destroy implements interface. Freeing the pool releases the
// buffers with it.
func (r *FrameRecorder) Destroy() {
	vk.FreeCommandBuffers(r.devctx.Device(), r.pool, uint32(len(r.buffers)), r.buffers)
	vk.DestroyCommandPool(r.devctx.Device(), r.pool, nil)
}
