// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package par

import (
	"bytes"
	"testing"
	"time"
)

func TestAddAndWrite(t *testing.T) {
	builder := NewBuilder(Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})

	builder.Add("test", []byte("idunvovkjnreovmegihjbrqlkmfrjnb"))
	builder.Add("test2", []byte("idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"))

	if len(builder.files) != 2 {
		t.Error("incorrect number of files present")
	}

	buf := bytes.NewBuffer([]byte{})
	num, err := builder.WriteTo(buf)
	if err != nil {
		t.Error(err)
	}
	t.Logf("written %d \n", num)

	if len(builder.files) != 0 {
		t.Error("builder not drained after write")
	}
}

func TestIndexOffsetsAreContiguous(t *testing.T) {
	builder := NewBuilder(Header{Author: "devblok", Version: 1})
	builder.Add("a", bytes.Repeat([]byte("abcd"), 256))
	builder.Add("b", bytes.Repeat([]byte("efgh"), 512))

	buf := bytes.NewBuffer([]byte{})
	if _, err := builder.WriteTo(buf); err != nil {
		t.Fatal(err)
	}

	archive, err := Open(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}

	index := archive.header.Index
	if index[0].Offset != 0 {
		t.Errorf("first entry offset %d, expected 0", index[0].Offset)
	}
	if index[1].Offset != index[0].CompressedSize {
		t.Errorf("second entry offset %d does not follow first entry of %d bytes",
			index[1].Offset, index[0].CompressedSize)
	}
}
