// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package core

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"unsafe"
)

const shaderSuffix = ".spv"

// LoadShaderBlobs walks dir for compiled shaders and returns the
// vertex and fragment pair. File names follow the name.stage.spv
// convention, with stage either vert or frag; anything else in the
// directory is skipped. Both stages must be present.
func LoadShaderBlobs(dir string) (ShaderBlobs, error) {
	var blobs ShaderBlobs
	if err := filepath.Walk(dir, func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !strings.HasSuffix(f.Name(), shaderSuffix) {
			return nil
		}
		nodes := strings.Split(strings.TrimSuffix(f.Name(), shaderSuffix), ".")
		if len(nodes) != 2 {
			return nil
		}

		switch nodes[len(nodes)-1] {
		case "vert":
			blob, err := ioutil.ReadFile(path)
			if err != nil {
				return err
			}
			blobs.Vertex = blob
		case "frag":
			blob, err := ioutil.ReadFile(path)
			if err != nil {
				return err
			}
			blobs.Fragment = blob
		}
		return nil
	}); err != nil {
		return blobs, err
	}

	if blobs.Vertex == nil || blobs.Fragment == nil {
		return blobs, fmt.Errorf("core.LoadShaderBlobs(): incomplete shader set in %s", dir)
	}
	return blobs, nil
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

// SliceUint32 reslices bytes into a uint32, that is used
// to sumbit vulkan shaders for processing
func SliceUint32(data []byte) []uint32 {
	const m = 0x7fffffff
	return (*[m / 4]uint32)(unsafe.Pointer((*sliceHeader)(unsafe.Pointer(&data)).Data))[:len(data)/4]
}

func safeString(s string) string {
	return fmt.Sprintf("%s\x00", s)
}

func safeStrings(sgs []string) []string {
	safe := []string{}
	for _, s := range sgs {
		safe = append(safe, fmt.Sprintf("%s\x00", s))
	}
	return safe
}

func clamp(value, min, max uint32) uint32 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
