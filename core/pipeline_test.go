// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/devblok/prism/core"
)

func validBlob(words int) []byte {
	blob := make([]byte, words*4)
	binary.LittleEndian.PutUint32(blob, 0x07230203)
	return blob
}

func TestValidateShaderBlobAccepts(t *testing.T) {
	if err := core.ValidateShaderBlob(validBlob(5)); err != nil {
		t.Error(err)
	}
}

func TestValidateShaderBlobRejects(t *testing.T) {
	cases := []struct {
		name string
		blob []byte
	}{
		{"empty", []byte{}},
		{"truncated header", validBlob(5)[:16]},
		{"unaligned", append(validBlob(5), 0)},
		{"wrong magic", make([]byte, 20)},
	}

	for _, c := range cases {
		err := core.ValidateShaderBlob(c.blob)
		if err == nil {
			t.Errorf("%s: accepted invalid blob", c.name)
			continue
		}
		if !errors.Is(err, core.ErrShaderLink) {
			t.Errorf("%s: wrong error class: %v", c.name, err)
		}
	}
}
