// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"math"
	"testing"

	vk "github.com/devblok/vulkan"

	"github.com/devblok/prism/core"
)

func TestChooseSurfaceFormatExactMatch(t *testing.T) {
	available := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatB8g8r8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	format, exact := core.ChooseSurfaceFormat(available, vk.FormatB8g8r8a8Unorm, vk.ColorSpaceSrgbNonlinear)
	if !exact {
		t.Error("expected an exact match")
	}
	if format.Format != vk.FormatB8g8r8a8Unorm {
		t.Errorf("wrong format chosen: %v", format.Format)
	}
}

func TestChooseSurfaceFormatFallsBackToFirst(t *testing.T) {
	available := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatR5g6b5UnormPack16, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	format, exact := core.ChooseSurfaceFormat(available, vk.FormatB8g8r8a8Unorm, vk.ColorSpaceSrgbNonlinear)
	if exact {
		t.Error("match reported where none exists")
	}
	if format != available[0] {
		t.Error("fallback must be the surface's first format")
	}
}

func TestChoosePresentMode(t *testing.T) {
	withMailbox := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox}
	if mode := core.ChoosePresentMode(withMailbox, vk.PresentModeMailbox); mode != vk.PresentModeMailbox {
		t.Errorf("expected mailbox, got %v", mode)
	}

	fifoOnly := []vk.PresentMode{vk.PresentModeFifo}
	if mode := core.ChoosePresentMode(fifoOnly, vk.PresentModeMailbox); mode != vk.PresentModeFifo {
		t.Errorf("expected fifo fallback, got %v", mode)
	}
}

func TestResolveExtentPinnedBySurface(t *testing.T) {
	capabilities := vk.SurfaceCapabilities{
		CurrentExtent: vk.Extent2D{Width: 1024, Height: 768},
	}

	extent := core.ResolveExtent(capabilities, 333, 444)
	if extent.Width != 1024 || extent.Height != 768 {
		t.Errorf("surface-pinned extent ignored, got %dx%d", extent.Width, extent.Height)
	}
}

func TestResolveExtentClampsDrawableSize(t *testing.T) {
	capabilities := vk.SurfaceCapabilities{
		CurrentExtent:  vk.Extent2D{Width: math.MaxUint32, Height: math.MaxUint32},
		MinImageExtent: vk.Extent2D{Width: 100, Height: 100},
		MaxImageExtent: vk.Extent2D{Width: 2000, Height: 2000},
	}

	extent := core.ResolveExtent(capabilities, 800, 600)
	if extent.Width != 800 || extent.Height != 600 {
		t.Errorf("in-range size must pass through, got %dx%d", extent.Width, extent.Height)
	}

	extent = core.ResolveExtent(capabilities, 50, 9000)
	if extent.Width != 100 || extent.Height != 2000 {
		t.Errorf("out-of-range size must clamp, got %dx%d", extent.Width, extent.Height)
	}
}

func TestPolicyFunctionsAreDeterministic(t *testing.T) {
	available := []vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Unorm, ColorSpace: vk.ColorSpaceSrgbNonlinear},
		{Format: vk.FormatR5g6b5UnormPack16, ColorSpace: vk.ColorSpaceSrgbNonlinear},
	}

	first, _ := core.ChooseSurfaceFormat(available, vk.FormatB8g8r8a8Unorm, vk.ColorSpaceSrgbNonlinear)
	for idx := 0; idx < 10; idx++ {
		again, _ := core.ChooseSurfaceFormat(available, vk.FormatB8g8r8a8Unorm, vk.ColorSpaceSrgbNonlinear)
		if again != first {
			t.Fatal("format fallback is not deterministic")
		}
	}
}

func TestResolveImageCount(t *testing.T) {
	unbounded := vk.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}
	if count := core.ResolveImageCount(unbounded); count != 3 {
		t.Errorf("expected min+1 on unbounded surface, got %d", count)
	}

	bounded := vk.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}
	if count := core.ResolveImageCount(bounded); count != 3 {
		t.Errorf("expected clamp to maximum, got %d", count)
	}
}
