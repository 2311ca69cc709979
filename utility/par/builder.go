// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package par

import (
	"bytes"
	"io"
	"sync"

	"github.com/pierrec/lz4"
)

// NewBuilder creates a new Builder. Do not fill the Index in
// the header, it will be overwritten anyway.
func NewBuilder(header Header) *Builder {
	header.Index = nil
	return &Builder{
		header: header,
	}
}

type pendingFile struct {

	// Name is the actual name of the file
	Name string

	// Size is the uncompressed size
	Size int64

	Compressed []byte
}

// Builder is the high level builder for the archive format.
// Archives are versioned and cannot be appended to, this Builder
// is the way to create one. Whenever Add is called the data is
// compressed immediately and held until WriteTo bundles everything
// together.
type Builder struct {
	io.WriterTo

	header Header

	mutex sync.Mutex
	files []pendingFile
}

// Add appends data to the builder with a given name.
// Will block until lz4 finishes compression. Is safe
// to use concurrently in different goroutines.
func (b *Builder) Add(name string, data []byte) error {
	var compressed bytes.Buffer
	writer := lz4.NewWriter(&compressed)
	written, err := io.Copy(writer, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.files = append(b.files, pendingFile{
		Name:       name,
		Size:       written,
		Compressed: compressed.Bytes(),
	})
	return nil
}

// WriteTo bundles and writes all of the files added to the Builder
// into a par archive that is ready to use.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	header := b.header
	var offset int64
	for _, file := range b.files {
		header.Index = append(header.Index, IndexEntry{
			Name:           file.Name,
			Offset:         offset,
			Size:           file.Size,
			CompressedSize: int64(len(file.Compressed)),
		})
		offset += int64(len(file.Compressed))
	}

	rawHeader, err := gobEncode(header)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, chunk := range [][]byte{magic[:], int64ToBinary(int64(len(rawHeader))), rawHeader} {
		num, err := w.Write(chunk)
		total += int64(num)
		if err != nil {
			return total, err
		}
	}
	for _, file := range b.files {
		num, err := w.Write(file.Compressed)
		total += int64(num)
		if err != nil {
			return total, err
		}
	}

	b.files = b.files[:0]
	return total, nil
}
