// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package core implements the Vulkan presentation core: instance and
// device bring-up, swapchain lifecycle and the per-frame
// acquire/record/submit/present protocol. Windowing, shader
// compilation and asset parsing live outside of this package and are
// consumed through narrow interfaces.
package core

import (
	"unsafe"

	vk "github.com/devblok/vulkan"
	glm "github.com/go-gl/mathgl/mgl32"
)

// Destroyable frees every Vulkan resource the implementor owns.
// Must only be called after the work using those resources completed.
type Destroyable interface {
	Destroy()
}

// Instance describes a Vulkan API instance and supporting methods.
// Once created it is ready to use.
type Instance interface {
	// PhysicalDevicesInfo returns a struct for each Physical Device
	// along with info about those devices
	PhysicalDevicesInfo() []PhysicalDeviceInfo

	// AvailableDevices returns handles of Physical Devices
	// from the Vulkan API
	AvailableDevices() []vk.PhysicalDevice

	// SetSurface sets the window surface for rendering
	SetSurface(unsafe.Pointer)

	// Surface returns the window surface, if it's not set
	// it should return a valid but empty surface
	Surface() vk.Surface

	// Extensions returns instance extensions the instance was created with
	Extensions() []string

	// Inner returns the inner handle of the underlying API
	Inner() interface{}

	// Destroy destroys internal members
	Destroy()
}

// SurfaceProvider is the window system's side of the contract. The
// core never touches the windowing library directly, it only reads
// drawable dimensions and subscribes to resize notifications.
type SurfaceProvider interface {
	// DrawableSize returns the current dimensions of the drawable
	// surface in pixels.
	DrawableSize() (width, height uint32)

	// OnResize registers a callback invoked whenever the drawable
	// surface changes size. The callback may be invoked from the
	// windowing event loop and must be cheap.
	OnResize(func(width, height uint32))
}

// FrameSync groups the synchronization primitives of a single
// in-flight frame slot. ImageAvailable orders acquire against submit,
// RenderFinished orders submit against present, InFlight is the
// CPU-observable completion fence for the whole frame.
type FrameSync struct {
	ImageAvailable vk.Semaphore
	RenderFinished vk.Semaphore
	InFlight       vk.Fence
}

// FrameData is everything the recorder needs to fully re-record one
// frame. It carries no references into previous frames.
type FrameData struct {
	MVP        glm.Mat4
	ClearColor [4]float32
}

// ShaderBlobs carries precompiled SPIR-V bytecode for both stages of
// the fixed pipeline. Producing valid bytecode is the loader's
// responsibility, the core only checks the container shape.
type ShaderBlobs struct {
	Vertex   []byte
	Fragment []byte
}

// Context is the device-context surface the frame scheduler depends
// on. Implemented by DeviceContext.
type Context interface {
	// Submit enqueues buf on the graphics queue, waiting on
	// sync.ImageAvailable, signalling sync.RenderFinished and
	// sync.InFlight.
	Submit(buf vk.CommandBuffer, sync *FrameSync) error

	// NewFrameSync creates a frame slot's synchronization set with
	// the fence initially signaled.
	NewFrameSync() (*FrameSync, error)

	// DestroyFrameSync destroys a set created by NewFrameSync.
	DestroyFrameSync(*FrameSync)

	// WaitSync blocks until sync's fence signals or timeout
	// nanoseconds pass.
	WaitSync(sync *FrameSync, timeout uint64) error

	// ResetSync unsignals sync's fence.
	ResetSync(sync *FrameSync) error

	// WaitIdle blocks until the device finished all submitted work.
	WaitIdle()
}

// Presenter is the swapchain surface the frame scheduler depends on.
// Implemented by SwapchainManager.
type Presenter interface {
	// Acquire obtains the next presentable image index, signalling
	// sync.ImageAvailable when the image is ready to be written.
	Acquire(sync *FrameSync, timeout uint64) (uint32, error)

	// Present enqueues imageIndex for presentation after
	// sync.RenderFinished signals.
	Present(imageIndex uint32, sync *FrameSync) error

	// Rebuild tears the chain down and rebuilds it against the
	// current surface state.
	Rebuild(width, height uint32) error

	ImageCount() int
	Format() vk.Format
	Extent() vk.Extent2D
	ImageViews() []vk.ImageView

	Destroy()
}

// Pipeline is the render-target surface the frame scheduler rebuilds
// on swapchain changes. Implemented by PipelineResources.
type Pipeline interface {
	// Rebuild is a full teardown and recreate against a new
	// swapchain format and extent.
	Rebuild(format vk.Format, extent vk.Extent2D, views []vk.ImageView) error

	Destroy()
}

// Recorder re-records the primary command buffer of a frame slot.
// Implemented by FrameRecorder.
type Recorder interface {
	// Record resets the slot's buffer and records the full frame
	// targeting the given swapchain image. Idempotent per call.
	Record(slot int, imageIndex uint32, frame FrameData) (vk.CommandBuffer, error)

	Destroy()
}
