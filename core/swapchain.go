// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"fmt"
	"math"

	vk "github.com/devblok/vulkan"
	"github.com/sirupsen/logrus"
)

// SurfaceDescriptor is a snapshot of what the surface can do at one
// point in time. It goes stale the moment the window changes, so
// never cache it across swapchain builds.
type SurfaceDescriptor struct {
	Capabilities vk.SurfaceCapabilities
	Formats      []vk.SurfaceFormat
	PresentModes []vk.PresentMode
}

func querySurfaceDescriptor(device vk.PhysicalDevice, surface vk.Surface) (SurfaceDescriptor, error) {
	var desc SurfaceDescriptor

	if err := vk.Error(vk.GetPhysicalDeviceSurfaceCapabilities(device, surface, &desc.Capabilities)); err != nil {
		return desc, errors.New("vk.GetPhysicalDeviceSurfaceCapabilities(): " + err.Error())
	}
	desc.Capabilities.Deref()
	desc.Capabilities.CurrentExtent.Deref()
	desc.Capabilities.MinImageExtent.Deref()
	desc.Capabilities.MaxImageExtent.Deref()

	var formatCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, nil)); err != nil {
		return desc, errors.New("vk.GetPhysicalDeviceSurfaceFormats(): " + err.Error())
	}
	desc.Formats = make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(device, surface, &formatCount, desc.Formats)
	for idx := range desc.Formats {
		desc.Formats[idx].Deref()
	}

	var modeCount uint32
	if err := vk.Error(vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, nil)); err != nil {
		return desc, errors.New("vk.GetPhysicalDeviceSurfacePresentModes(): " + err.Error())
	}
	desc.PresentModes = make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(device, surface, &modeCount, desc.PresentModes)

	return desc, nil
}

// ChooseSurfaceFormat picks the preferred format/colorspace pair when
// the surface offers it, otherwise the surface's first entry. The
// second return reports whether the preference matched.
func ChooseSurfaceFormat(available []vk.SurfaceFormat, format vk.Format, colorSpace vk.ColorSpace) (vk.SurfaceFormat, bool) {
	for _, candidate := range available {
		if candidate.Format == format && candidate.ColorSpace == colorSpace {
			return candidate, true
		}
	}
	return available[0], false
}

// ChoosePresentMode prefers the requested mode, falling back to FIFO
// which every surface supports.
func ChoosePresentMode(available []vk.PresentMode, preferred vk.PresentMode) vk.PresentMode {
	for _, candidate := range available {
		if candidate == preferred {
			return candidate
		}
	}
	return vk.PresentModeFifo
}

// ResolveExtent returns the extent a new swapchain must use. When the
// surface pins CurrentExtent the swapchain has no say; the MaxUint32
// sentinel means the caller's drawable size decides, clamped to the
// surface limits.
func ResolveExtent(capabilities vk.SurfaceCapabilities, width, height uint32) vk.Extent2D {
	if capabilities.CurrentExtent.Width != math.MaxUint32 {
		return capabilities.CurrentExtent
	}
	return vk.Extent2D{
		Width:  clamp(width, capabilities.MinImageExtent.Width, capabilities.MaxImageExtent.Width),
		Height: clamp(height, capabilities.MinImageExtent.Height, capabilities.MaxImageExtent.Height),
	}
}

// ResolveImageCount asks for one image above the minimum so the
// driver never blocks acquisition on its own bookkeeping. A zero
// maximum means unbounded.
func ResolveImageCount(capabilities vk.SurfaceCapabilities) uint32 {
	count := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && count > capabilities.MaxImageCount {
		count = capabilities.MaxImageCount
	}
	return count
}

// SwapchainManager owns the swapchain, its images and their views.
// Rebuild recreates the lot against the current surface state while
// handing the old swapchain to the driver for resource reuse.
type SwapchainManager struct {
	log logrus.FieldLogger

	devctx *DeviceContext
	cfg    SwapchainConfiguration

	swapchain  vk.Swapchain
	format     vk.SurfaceFormat
	extent     vk.Extent2D
	images     []vk.Image
	imageViews []vk.ImageView
}

// NewSwapchainManager builds the initial swapchain for the given
// drawable size.
func NewSwapchainManager(devctx *DeviceContext, cfg SwapchainConfiguration, width, height uint32, log logrus.FieldLogger) (*SwapchainManager, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	manager := &SwapchainManager{
		log:    log,
		devctx: devctx,
		cfg:    cfg.withDefaults(),
	}
	if err := manager.Rebuild(width, height); err != nil {
		return nil, err
	}
	return manager, nil
}

// Rebuild implements Presenter. The previous swapchain, if any, is
// passed as OldSwapchain and destroyed once the new one exists. The
// caller must have drained the device first.
func (s *SwapchainManager) Rebuild(width, height uint32) error {
	desc, err := querySurfaceDescriptor(s.devctx.Physical(), s.devctx.SurfaceHandle())
	if err != nil {
		return err
	}

	format, exact := ChooseSurfaceFormat(desc.Formats, s.cfg.PreferredFormat, s.cfg.PreferredColorSpace)
	if !exact {
		s.log.WithFields(logrus.Fields{
			"format":     format.Format,
			"colorSpace": format.ColorSpace,
		}).Warn("preferred surface format unavailable, using fallback")
	}
	presentMode := ChoosePresentMode(desc.PresentModes, s.cfg.PreferredPresentMode)
	extent := ResolveExtent(desc.Capabilities, width, height)
	imageCount := ResolveImageCount(desc.Capabilities)

	families := s.devctx.Families()
	sharingMode := vk.SharingModeExclusive
	var familyIndices []uint32
	if !families.Unified() {
		sharingMode = vk.SharingModeConcurrent
		familyIndices = []uint32{families.Graphics, families.Present}
	}

	sci := vk.SwapchainCreateInfo{
		SType:                 vk.StructureTypeSwapchainCreateInfo,
		Surface:               s.devctx.SurfaceHandle(),
		MinImageCount:         imageCount,
		ImageFormat:           format.Format,
		ImageColorSpace:       format.ColorSpace,
		ImageExtent:           extent,
		ImageArrayLayers:      1,
		ImageUsage:            vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		ImageSharingMode:      sharingMode,
		QueueFamilyIndexCount: uint32(len(familyIndices)),
		PQueueFamilyIndices:   familyIndices,
		PreTransform:          desc.Capabilities.CurrentTransform,
		CompositeAlpha:        vk.CompositeAlphaOpaqueBit,
		PresentMode:           presentMode,
		Clipped:               vk.True,
		OldSwapchain:          s.swapchain,
	}

	var swapchain vk.Swapchain
	if err := vk.Error(vk.CreateSwapchain(s.devctx.Device(), &sci, nil, &swapchain)); err != nil {
		return errors.New("vk.CreateSwapchain(): " + err.Error())
	}
	s.destroyResources()
	s.swapchain = swapchain
	s.format = format
	s.extent = extent

	var count uint32
	if err := vk.Error(vk.GetSwapchainImages(s.devctx.Device(), s.swapchain, &count, nil)); err != nil {
		return errors.New("vk.GetSwapchainImages(): " + err.Error())
	}
	s.images = make([]vk.Image, count)
	vk.GetSwapchainImages(s.devctx.Device(), s.swapchain, &count, s.images)

	s.imageViews = make([]vk.ImageView, count)
	for idx, image := range s.images {
		ivci := vk.ImageViewCreateInfo{
			SType:    vk.StructureTypeImageViewCreateInfo,
			Image:    image,
			ViewType: vk.ImageViewType2d,
			Format:   s.format.Format,
			Components: vk.ComponentMapping{
				R: vk.ComponentSwizzleIdentity,
				G: vk.ComponentSwizzleIdentity,
				B: vk.ComponentSwizzleIdentity,
				A: vk.ComponentSwizzleIdentity,
			},
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LevelCount: 1,
				LayerCount: 1,
			},
		}
		if err := vk.Error(vk.CreateImageView(s.devctx.Device(), &ivci, nil, &s.imageViews[idx])); err != nil {
			s.destroyResources()
			return errors.New("vk.CreateImageView(): " + err.Error())
		}
	}

	s.log.WithFields(logrus.Fields{
		"width":  extent.Width,
		"height": extent.Height,
		"images": count,
	}).Debug("swapchain built")
	return nil
}

// Acquire implements Presenter. Staleness and timeout come back as
// the package sentinels so the frame loop can steer on them. A
// suboptimal acquire still yields a usable image, so it succeeds and
// the rebuild is deferred to Present.
func (s *SwapchainManager) Acquire(sync *FrameSync, timeout uint64) (uint32, error) {
	var imageIndex uint32
	res := vk.AcquireNextImage(s.devctx.Device(), s.swapchain, uint(timeout), sync.ImageAvailable, vk.Fence(vk.NullHandle), &imageIndex)
	if err := acquireResult(res); err != nil {
		return 0, fmt.Errorf("vk.AcquireNextImage(): %w", err)
	}
	return imageIndex, nil
}

// Present implements Presenter.
func (s *SwapchainManager) Present(imageIndex uint32, sync *FrameSync) error {
	return s.devctx.Present(s.swapchain, imageIndex, sync.RenderFinished)
}

// ImageCount implements Presenter.
func (s *SwapchainManager) ImageCount() int {
	return len(s.images)
}

// Format implements Presenter.
func (s *SwapchainManager) Format() vk.Format {
	return s.format.Format
}

// Extent implements Presenter.
func (s *SwapchainManager) Extent() vk.Extent2D {
	return s.extent
}

// ImageViews implements Presenter. The slice is invalidated by the
// next Rebuild or Destroy.
func (s *SwapchainManager) ImageViews() []vk.ImageView {
	return s.imageViews
}

func (s *SwapchainManager) destroyResources() {
	for _, view := range s.imageViews {
		if view != vk.NullImageView {
			vk.DestroyImageView(s.devctx.Device(), view, nil)
		}
	}
	s.imageViews = nil
	s.images = nil
	if s.swapchain != vk.NullSwapchain {
		vk.DestroySwapchain(s.devctx.Device(), s.swapchain, nil)
		s.swapchain = vk.NullSwapchain
	}
}

// Destroy implements interface.
func (s *SwapchainManager) Destroy() {
	s.destroyResources()
}
