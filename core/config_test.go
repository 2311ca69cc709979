// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"errors"
	"testing"

	vk "github.com/devblok/vulkan"
)

func TestSwapchainConfigurationDefaults(t *testing.T) {
	cfg := SwapchainConfiguration{}.withDefaults()
	if cfg.PreferredFormat != vk.FormatB8g8r8a8Srgb {
		t.Errorf("default format is %d, want %d", cfg.PreferredFormat, vk.FormatB8g8r8a8Srgb)
	}
	if cfg.PreferredColorSpace != vk.ColorSpaceSrgbNonlinear {
		t.Errorf("default color space is %d, want %d", cfg.PreferredColorSpace, vk.ColorSpaceSrgbNonlinear)
	}
	if cfg.PreferredPresentMode != vk.PresentModeMailbox {
		t.Errorf("default present mode is %d, want %d", cfg.PreferredPresentMode, vk.PresentModeMailbox)
	}

	modes := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeMailbox, vk.PresentModeImmediate}
	if mode := ChoosePresentMode(modes, cfg.PreferredPresentMode); mode != vk.PresentModeMailbox {
		t.Errorf("default configuration chose mode %d, want mailbox", mode)
	}
}

func TestSwapchainConfigurationKeepsExplicitValues(t *testing.T) {
	cfg := SwapchainConfiguration{
		PreferredFormat:      vk.FormatR8g8b8a8Unorm,
		PreferredColorSpace:  vk.ColorSpaceSrgbNonlinear,
		PreferredPresentMode: vk.PresentModeFifo,
	}.withDefaults()
	if cfg.PreferredFormat != vk.FormatR8g8b8a8Unorm {
		t.Errorf("explicit format overridden to %d", cfg.PreferredFormat)
	}
	if cfg.PreferredPresentMode != vk.PresentModeFifo {
		t.Errorf("explicit present mode overridden to %d", cfg.PreferredPresentMode)
	}
}

func TestAcquireResultKeepsSuboptimalImage(t *testing.T) {
	if err := acquireResult(vk.Suboptimal); err != nil {
		t.Errorf("suboptimal acquire returned %v, want success", err)
	}
	if err := chainResult(vk.Suboptimal); !errors.Is(err, ErrSwapchainStale) {
		t.Errorf("suboptimal present returned %v, want stale", err)
	}
	if err := acquireResult(vk.ErrorOutOfDate); !errors.Is(err, ErrSwapchainStale) {
		t.Errorf("out-of-date acquire returned %v, want stale", err)
	}
	if err := acquireResult(vk.Timeout); !errors.Is(err, ErrAcquireTimeout) {
		t.Errorf("acquire timeout returned %v, want timeout sentinel", err)
	}
}
