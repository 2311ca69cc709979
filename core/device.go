// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"

	vk "github.com/devblok/vulkan"
	"github.com/sirupsen/logrus"
)

// QueueFamilies holds the queue family indices resolved at device
// selection time. They never change for the lifetime of the context.
type QueueFamilies struct {
	Graphics uint32
	Present  uint32

	hasGraphics bool
	hasPresent  bool
}

// Unified reports whether graphics and present share one family.
func (q QueueFamilies) Unified() bool {
	return q.Graphics == q.Present
}

func (q QueueFamilies) complete() bool {
	return q.hasGraphics && q.hasPresent
}

// DeviceContext owns the physical device choice, the logical device
// and its queues. It is the leaf dependency of every other Vulkan
// resource in this package and must be destroyed last.
type DeviceContext struct {
	log logrus.FieldLogger

	physicalDevice vk.PhysicalDevice
	device         vk.Device
	surface        vk.Surface
	families       QueueFamilies

	graphicsQueue vk.Queue
	presentQueue  vk.Queue
}

// NewDeviceContext selects a physical device against the instance
// surface and opens a logical device with the queues the frame loop
// needs. Devices are filtered by queue family support, the swapchain
// extension and surface format/present-mode availability, then
// scored. Ties resolve to the first device in enumeration order so
// selection stays reproducible.
func NewDeviceContext(instance Instance, cfg DeviceConfiguration, log logrus.FieldLogger) (*DeviceContext, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	surface := instance.Surface()
	if surface == vk.NullSurface {
		return nil, errors.New("core.NewDeviceContext(): instance has no surface set")
	}

	extensions := append([]string{vk.KhrSwapchainExtensionName}, cfg.Extensions...)

	var (
		chosen         vk.PhysicalDevice
		chosenFamilies QueueFamilies
		chosenScore    uint32
	)
	for _, candidate := range instance.AvailableDevices() {
		families := findQueueFamilies(candidate, surface)
		if !families.complete() {
			continue
		}
		if !supportsExtensions(candidate, extensions) {
			continue
		}
		if !surfaceAdequate(candidate, surface) {
			continue
		}
		if score := deviceScore(candidate); score > chosenScore {
			chosen = candidate
			chosenFamilies = families
			chosenScore = score
		}
	}
	if chosenScore == 0 {
		return nil, ErrNoSuitableDevice
	}

	/* Logical device setup, one queue per distinct family */
	queueFamilies := []uint32{chosenFamilies.Graphics}
	if !chosenFamilies.Unified() {
		queueFamilies = append(queueFamilies, chosenFamilies.Present)
	}

	var queueInfos []vk.DeviceQueueCreateInfo
	for _, family := range queueFamilies {
		queueInfos = append(queueInfos, vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		})
	}

	dci := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
	}

	var device vk.Device
	if err := vk.Error(vk.CreateDevice(chosen, &dci, nil, &device)); err != nil {
		return nil, errors.New("vk.CreateDevice(): " + err.Error())
	}

	var graphicsQueue, presentQueue vk.Queue
	vk.GetDeviceQueue(device, chosenFamilies.Graphics, 0, &graphicsQueue)
	vk.GetDeviceQueue(device, chosenFamilies.Present, 0, &presentQueue)

	log.WithFields(logrus.Fields{
		"graphicsFamily": chosenFamilies.Graphics,
		"presentFamily":  chosenFamilies.Present,
	}).Debug("logical device created")

	return &DeviceContext{
		log:            log,
		physicalDevice: chosen,
		device:         device,
		surface:        surface,
		families:       chosenFamilies,
		graphicsQueue:  graphicsQueue,
		presentQueue:   presentQueue,
	}, nil
}

func findQueueFamilies(device vk.PhysicalDevice, surface vk.Surface) QueueFamilies {
	var families QueueFamilies

	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, nil)
	properties := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &count, properties)

	for idx := uint32(0); idx < count; idx++ {
		properties[idx].Deref()
		if !families.hasGraphics && properties[idx].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			families.Graphics = idx
			families.hasGraphics = true
		}

		var supported vk.Bool32
		if vk.GetPhysicalDeviceSurfaceSupport(device, idx, surface, &supported) == vk.Success &&
			supported.B() && !families.hasPresent {
			families.Present = idx
			families.hasPresent = true
		}

		if families.complete() {
			break
		}
	}
	return families
}

func supportsExtensions(device vk.PhysicalDevice, required []string) bool {
	var count uint32
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, nil) != vk.Success {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if vk.EnumerateDeviceExtensionProperties(device, "", &count, available) != vk.Success {
		return false
	}

	missing := make(map[string]struct{}, len(required))
	for _, name := range required {
		missing[name] = struct{}{}
	}
	for _, ext := range available {
		ext.Deref()
		delete(missing, vk.ToString(ext.ExtensionName[:]))
	}
	return len(missing) == 0
}

func surfaceAdequate(device vk.PhysicalDevice, surface vk.Surface) bool {
	var formatCount uint32
	if vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil) != vk.Success {
		return false
	}
	var modeCount uint32
	if vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil) != vk.Success {
		return false
	}
	return formatCount > 0 && modeCount > 0
}

func deviceScore(device vk.PhysicalDevice) uint32 {
	var properties vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(device, &properties)
	properties.Deref()

	if properties.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
		return 1000
	}
	return 1
}

// Physical returns the chosen physical device handle.
func (d *DeviceContext) Physical() vk.PhysicalDevice {
	return d.physicalDevice
}

// Device returns the logical device handle.
func (d *DeviceContext) Device() vk.Device {
	return d.device
}

// SurfaceHandle returns the surface the device was selected against.
func (d *DeviceContext) SurfaceHandle() vk.Surface {
	return d.surface
}

// Families returns the resolved queue family indices.
func (d *DeviceContext) Families() QueueFamilies {
	return d.families
}

// Submit implements Context. The submission waits on the slot's
// image-available semaphore at the color-attachment stage, signals
// the render-finished semaphore and the slot's fence.
func (d *DeviceContext) Submit(buf vk.CommandBuffer, sync *FrameSync) error {
	submits := []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{sync.ImageAvailable},
		PWaitDstStageMask: []vk.PipelineStageFlags{
			vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		},
		CommandBufferCount:   1,
		PCommandBuffers:      []vk.CommandBuffer{buf},
		SignalSemaphoreCount: 1,
		PSignalSemaphores:    []vk.Semaphore{sync.RenderFinished},
	}}

	res := vk.QueueSubmit(d.graphicsQueue, 1, submits, sync.InFlight)
	if res == vk.ErrorDeviceLost {
		return fmt.Errorf("vk.QueueSubmit(): %w", ErrDeviceLost)
	}
	if err := vk.Error(res); err != nil {
		return errors.New("vk.QueueSubmit(): " + err.Error())
	}
	return nil
}

// Present enqueues imageIndex of chain on the present queue once wait
// signals. A stale surface comes back as ErrSwapchainStale.
func (d *DeviceContext) Present(chain vk.Swapchain, imageIndex uint32, wait vk.Semaphore) error {
	presentInfo := vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vk.Semaphore{wait},
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{chain},
		PImageIndices:      []uint32{imageIndex},
	}

	if err := chainResult(vk.QueuePresent(d.presentQueue, &presentInfo)); err != nil {
		return fmt.Errorf("vk.QueuePresent(): %w", err)
	}
	return nil
}

// NewFrameSync implements Context. The fence starts signaled so the
// first wait on a fresh slot passes immediately.
func (d *DeviceContext) NewFrameSync() (*FrameSync, error) {
	sci := vk.SemaphoreCreateInfo{
		SType: vk.StructureTypeSemaphoreCreateInfo,
	}
	fci := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
		Flags: vk.FenceCreateFlags(vk.FenceCreateSignaledBit),
	}

	var sync FrameSync
	if err := vk.Error(vk.CreateSemaphore(d.device, &sci, nil, &sync.ImageAvailable)); err != nil {
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if err := vk.Error(vk.CreateSemaphore(d.device, &sci, nil, &sync.RenderFinished)); err != nil {
		vk.DestroySemaphore(d.device, sync.ImageAvailable, nil)
		return nil, errors.New("vk.CreateSemaphore(): " + err.Error())
	}
	if err := vk.Error(vk.CreateFence(d.device, &fci, nil, &sync.InFlight)); err != nil {
		vk.DestroySemaphore(d.device, sync.ImageAvailable, nil)
		vk.DestroySemaphore(d.device, sync.RenderFinished, nil)
		return nil, errors.New("vk.CreateFence(): " + err.Error())
	}
	return &sync, nil
}

// DestroyFrameSync implements Context.
func (d *DeviceContext) DestroyFrameSync(sync *FrameSync) {
	vk.DestroySemaphore(d.device, sync.ImageAvailable, nil)
	vk.DestroySemaphore(d.device, sync.RenderFinished, nil)
	vk.DestroyFence(d.device, sync.InFlight, nil)
}

// WaitSync implements Context.
func (d *DeviceContext) WaitSync(sync *FrameSync, timeout uint64) error {
	res := vk.WaitForFences(d.device, 1, []vk.Fence{sync.InFlight}, vk.True, uint(timeout))
	if res == vk.Timeout {
		return errors.New("vk.WaitForFences(): timed out, GPU stalled")
	}
	if res == vk.ErrorDeviceLost {
		return fmt.Errorf("vk.WaitForFences(): %w", ErrDeviceLost)
	}
	if err := vk.Error(res); err != nil {
		return errors.New("vk.WaitForFences(): " + err.Error())
	}
	return nil
}

// ResetSync implements Context.
func (d *DeviceContext) ResetSync(sync *FrameSync) error {
	if err := vk.Error(vk.ResetFences(d.device, 1, []vk.Fence{sync.InFlight})); err != nil {
		return errors.New("vk.ResetFences(): " + err.Error())
	}
	return nil
}

// WaitIdle implements Context.
func (d *DeviceContext) WaitIdle() {
	vk.DeviceWaitIdle(d.device)
}

// Destroy implements interface. All dependent resources must be gone
// before this is called.
func (d *DeviceContext) Destroy() {
	vk.DestroyDevice(d.device, nil)
}
