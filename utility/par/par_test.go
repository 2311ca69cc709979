// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package par_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/devblok/prism/utility/par"
)

var (
	testString1 = "idunvovkjnreovmegihjbrqlkmfrjnb"
	testString2 = "idunvovkjnreovmsdvwrvnervnreegihjbrqlkmfrjnb"
)

func buildTestArchive(t *testing.T) []byte {
	t.Helper()
	builder := par.NewBuilder(par.Header{
		Author:      "devblok",
		DateCreated: time.Now().Unix(),
		Version:     1,
	})
	if err := builder.Add("test", []byte(testString1)); err != nil {
		t.Fatal(err)
	}
	if err := builder.Add("sub/test2", []byte(testString2)); err != nil {
		t.Fatal(err)
	}

	buf := bytes.NewBuffer([]byte{})
	written, err := builder.WriteTo(buf)
	if err != nil {
		t.Fatal(err)
	}
	if written != int64(buf.Len()) {
		t.Errorf("reported %d written bytes, buffer has %d", written, buf.Len())
	}
	return buf.Bytes()
}

func TestCreateAndRead(t *testing.T) {
	archive, err := par.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	header := archive.Header()
	if header.Author != "devblok" || len(header.Index) != 2 {
		t.Errorf("header mismatch: %+v", header)
	}

	data, err := archive.ReadAll("test")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testString1 {
		t.Errorf("round trip mismatch: %q", data)
	}

	data, err = archive.ReadAll("sub/test2")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != testString2 {
		t.Errorf("round trip mismatch: %q", data)
	}
}

func TestOpenRejectsCorruptMagic(t *testing.T) {
	raw := buildTestArchive(t)
	raw[0] = 'X'

	if _, err := par.Open(bytes.NewReader(raw)); err != par.ErrFileFormat {
		t.Errorf("expected ErrFileFormat, got %v", err)
	}
}

func TestReadAllMissingEntry(t *testing.T) {
	archive, err := par.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := archive.ReadAll("nope"); err != par.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestConcurrentReads(t *testing.T) {
	archive, err := par.Open(bytes.NewReader(buildTestArchive(t)))
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 8)
	for idx := 0; idx < 8; idx++ {
		go func() {
			data, err := archive.ReadAll("test")
			if err == nil && string(data) != testString1 {
				err = par.ErrFileFormat
			}
			done <- err
		}()
	}
	for idx := 0; idx < 8; idx++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}
