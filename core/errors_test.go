// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"fmt"
	"testing"

	"github.com/devblok/prism/core"
)

func TestRecoverable(t *testing.T) {
	cases := []struct {
		err         error
		recoverable bool
	}{
		{core.ErrSwapchainStale, true},
		{core.ErrAcquireTimeout, true},
		{fmt.Errorf("vk.QueuePresent(): %w", core.ErrSwapchainStale), true},
		{core.ErrDeviceLost, false},
		{core.ErrNoSuitableDevice, false},
		{core.ErrShaderLink, false},
	}

	for _, c := range cases {
		if got := core.Recoverable(c.err); got != c.recoverable {
			t.Errorf("Recoverable(%v) = %v, expected %v", c.err, got, c.recoverable)
		}
	}
}
