// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"

	vk "github.com/devblok/vulkan"
)

// Package error taxonomy. Recoverable errors are handled inside the
// frame scheduler and never escape Tick, the rest propagate to the
// caller so the process can shut down in order.
var (
	// ErrNoSuitableDevice means no physical device exposes the
	// queue families, extensions and surface support the core
	// requires. Fatal at startup.
	ErrNoSuitableDevice = errors.New("no suitable physical device found")

	// ErrSwapchainStale means the swapchain no longer matches the
	// live surface and must be rebuilt. Recoverable.
	ErrSwapchainStale = errors.New("swapchain is out of date with the surface")

	// ErrAcquireTimeout means no presentable image became available
	// within the configured timeout. Recoverable, the frame is
	// skipped.
	ErrAcquireTimeout = errors.New("timed out acquiring a swapchain image")

	// ErrDeviceLost is a driver-level failure with no recovery
	// path. Fatal.
	ErrDeviceLost = errors.New("device lost")

	// ErrShaderLink means a shader blob is not consumable by the
	// fixed pipeline. Fatal at pipeline-build time.
	ErrShaderLink = errors.New("shader stage interface mismatch")
)

// Recoverable reports whether the frame loop may continue after err.
func Recoverable(err error) bool {
	return errors.Is(err, ErrSwapchainStale) || errors.Is(err, ErrAcquireTimeout)
}

// acquireResult maps acquire result codes onto the package taxonomy.
// Suboptimal counts as success here: the image was handed out and its
// semaphore will signal, so the frame must render and present it. The
// rebuild happens when Present reports the staleness.
func acquireResult(res vk.Result) error {
	if res == vk.Suboptimal {
		return nil
	}
	return chainResult(res)
}

// chainResult maps present result codes onto the package taxonomy.
// vk.Success maps to nil.
func chainResult(res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return ErrSwapchainStale
	case vk.Timeout, vk.NotReady:
		return ErrAcquireTimeout
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	default:
		return vk.Error(res)
	}
}
