// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"time"

	vk "github.com/devblok/vulkan"
)

// Configuration defines a global engine configuration setting
type Configuration struct {
	Time      TimeConfiguration
	Device    DeviceConfiguration
	Swapchain SwapchainConfiguration
	Scheduler SchedulerConfiguration
}

// TimeConfiguration is used to configure time services
type TimeConfiguration struct {
	// FramesPerSecond caps frames per second that is put out
	// To unlimit, set to 0
	FramesPerSecond int

	// EventPollDelay is the delay between window event polls,
	// in milliseconds
	EventPollDelay int
}

// InstanceConfiguration is used to configure the Vulkan instance
type InstanceConfiguration struct {
	DebugMode bool

	Extensions []string
	Layers     []string
}

// DeviceConfiguration is used to configure the logical device.
// The swapchain extension is always requested and need not be listed.
type DeviceConfiguration struct {
	Extensions []string
}

// SwapchainConfiguration carries the preferences the swapchain
// manager resolves against what the surface actually supports.
// Zero values select the package defaults.
type SwapchainConfiguration struct {
	PreferredFormat      vk.Format
	PreferredColorSpace  vk.ColorSpace
	PreferredPresentMode vk.PresentMode
}

// SchedulerConfiguration bounds the frame loop. Zero values select
// the package defaults.
type SchedulerConfiguration struct {
	// FramesInFlight is the number of frame slots the CPU may run
	// ahead of the GPU. Defaults to 2.
	FramesInFlight int

	// AcquireTimeout bounds the wait for a presentable image.
	// Never infinite, defaults to one second.
	AcquireTimeout time.Duration

	// FenceTimeout bounds the per-slot fence wait at the top of a
	// frame. Exceeding it means the GPU stalled. Defaults to five
	// seconds.
	FenceTimeout time.Duration
}

const (
	defaultFramesInFlight = 2
	defaultAcquireTimeout = time.Second
	defaultFenceTimeout   = 5 * time.Second
)

func (c SwapchainConfiguration) withDefaults() SwapchainConfiguration {
	if c.PreferredFormat == vk.FormatUndefined {
		c.PreferredFormat = vk.FormatB8g8r8a8Srgb
		c.PreferredColorSpace = vk.ColorSpaceSrgbNonlinear
	}
	// PresentModeImmediate is the zero value, selecting it explicitly
	// is not supported. Mailbox keeps latency low without tearing.
	if c.PreferredPresentMode == vk.PresentModeImmediate {
		c.PreferredPresentMode = vk.PresentModeMailbox
	}
	return c
}

func (c SchedulerConfiguration) withDefaults() SchedulerConfiguration {
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = defaultFramesInFlight
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = defaultAcquireTimeout
	}
	if c.FenceTimeout <= 0 {
		c.FenceTimeout = defaultFenceTimeout
	}
	return c
}
