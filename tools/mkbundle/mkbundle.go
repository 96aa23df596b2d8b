// Command mkbundle assembles a bundle image from a set of flat user program
// binaries. The image is loaded as the kernel's boot disk.
package main

import (
	"arcore/kernel/fs/bundle"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[mkbundle] error: %s\n", err.Error())
	os.Exit(1)
}

// collectFiles reads the supplied paths. Directories contribute every
// regular file they contain, in name order. Each file is stored under its
// base name.
func collectFiles(paths []string) ([]bundle.File, error) {
	var files []bundle.File

	add := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading %s", path)
		}
		files = append(files, bundle.File{Name: filepath.Base(path), Data: data})
		return nil
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", path)
		}

		if !info.IsDir() {
			if err = add(path); err != nil {
				return nil, err
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s", path)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, e := range entries {
			if !e.Type().IsRegular() {
				continue
			}
			if err = add(filepath.Join(path, e.Name())); err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

// run builds the image described by args and writes it to out. A non-zero
// minSectors pads the image to at least that many sectors.
func run(paths []string, minSectors uint64, out io.Writer, log io.Writer) error {
	if len(paths) == 0 {
		return errors.New("no input files")
	}

	files, err := collectFiles(paths)
	if err != nil {
		return err
	}

	image, err := bundle.Build(files)
	if err != nil {
		return errors.Wrap(err, "building image")
	}

	if minSize := minSectors * bundle.SectorSize; uint64(len(image)) < minSize {
		image = append(image, make([]byte, minSize-uint64(len(image)))...)
	}

	if _, err = out.Write(image); err != nil {
		return errors.Wrap(err, "writing image")
	}

	for _, f := range files {
		fmt.Fprintf(log, "  %-32s %8d bytes\n", f.Name, len(f.Data))
	}
	fmt.Fprintf(log, "%d file(s), %d sectors\n", len(files), uint64(len(image))/bundle.SectorSize)
	return nil
}

func main() {
	output := flag.String("o", "bundle.img", "the image file to create")
	sectors := flag.Uint64("sectors", 0, "pad the image to at least this many sectors")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mkbundle [-o image] [-sectors n] file|dir...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	f, err := os.Create(*output)
	if err != nil {
		exit(err)
	}

	if err = run(flag.Args(), *sectors, f, os.Stdout); err != nil {
		f.Close()
		os.Remove(*output)
		exit(err)
	}

	if err = f.Close(); err != nil {
		exit(err)
	}
}
