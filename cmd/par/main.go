// Copyright (c) 2019 devblok
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"errors"
	"flag"
	"io/ioutil"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/devblok/prism/utility/par"
)

func init() {
	u, err := user.Current()
	if err != nil {
		currentUserName = "unknown"
		return
	}
	currentUserName = u.Name
}

var (
	currentUserName string
	author          = flag.String("author", currentUserName, "Set the author of the package when compressing")
	version         = flag.Int64("version", 1, "Archive version number to create it with")
	extract         = flag.String("e", "", "Extract the given archive")
	compress        = flag.String("c", "", "Compress the given file/folder")
	dstFile         = flag.String("f", "out.par", "Destination file")
	dstDir          = flag.String("d", ".", "Destination directory for extraction")
)

func main() {
	var opMade bool
	flag.Parse()

	if *extract != "" && *compress != "" {
		panic(errors.New("only one operation at a time"))
	}

	if *extract != "" {
		opMade = true
		if err := extractFiles(); err != nil {
			panic(err)
		}
	}

	if *compress != "" {
		opMade = true
		if err := compressFiles(); err != nil {
			panic(err)
		}
	}

	if !opMade {
		flag.PrintDefaults()
	}
}

func compressFiles() error {
	if _, err := os.Stat(*dstFile); err == nil {
		return errors.New("destination file exists, will not overwrite")
	}

	dst, err := os.Create(*dstFile)
	if err != nil {
		return err
	}
	defer dst.Close()

	var filesToCompress []string
	if err := filepath.Walk(*compress, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		filesToCompress = append(filesToCompress, path)
		return nil
	}); err != nil {
		return err
	}

	builder := par.NewBuilder(par.Header{
		Author:      *author,
		DateCreated: time.Now().Unix(),
		Version:     *version,
	})

	for _, ftc := range filesToCompress {
		data, err := ioutil.ReadFile(ftc)
		if err != nil {
			return err
		}
		if err := builder.Add(filepath.ToSlash(ftc), data); err != nil {
			return err
		}
	}

	_, err = builder.WriteTo(dst)
	return err
}

func extractFiles() error {
	src, err := os.Open(*extract)
	if err != nil {
		return err
	}
	defer src.Close()

	archive, err := par.Open(src)
	if err != nil {
		return err
	}

	for _, entry := range archive.Header().Index {
		data, err := archive.ReadAll(entry.Name)
		if err != nil {
			return err
		}

		target := filepath.Join(*dstDir, filepath.FromSlash(entry.Name))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := ioutil.WriteFile(target, data, 0644); err != nil {
			return err
		}
	}
	return nil
}
