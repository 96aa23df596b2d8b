package main

import (
	"arcore/kernel/fs/bundle"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// imageReader serves sectors from an in-memory image.
type imageReader []byte

func (r imageReader) ReadSync(sector uint64, buf []byte) error {
	off := sector * bundle.SectorSize
	if off+uint64(len(buf)) > uint64(len(r)) {
		return io.ErrUnexpectedEOF
	}
	copy(buf, r[off:])
	return nil
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun(t *testing.T) {
	root := t.TempDir()
	progs := filepath.Join(root, "progs")
	if err := os.Mkdir(progs, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(progs, "skipped"), 0o755); err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(progs, "sh"), bytes.Repeat([]byte{0xaa}, 700))
	writeFile(t, filepath.Join(progs, "echo"), []byte{1, 2, 3})
	writeFile(t, filepath.Join(root, "init"), []byte{0x13, 0, 0, 0})

	var out, log bytes.Buffer
	if err := run([]string{filepath.Join(root, "init"), progs}, 32, &out, &log); err != nil {
		t.Fatal(err)
	}

	if got := out.Len(); got != 32*bundle.SectorSize {
		t.Fatalf("expected a padded image of %d bytes; got %d", 32*bundle.SectorSize, got)
	}

	if !strings.Contains(log.String(), "3 file(s), 32 sectors") {
		t.Errorf("unexpected log output:\n%s", log.String())
	}

	img := imageReader(out.Bytes())
	dir, err := bundle.Open(img)
	if err != nil {
		t.Fatal(err)
	}

	exp := []struct {
		name string
		size uint32
	}{
		{"init", 4},
		{"echo", 3},
		{"sh", 700},
	}
	if len(dir.Entries) != len(exp) {
		t.Fatalf("expected %d entries; got %d", len(exp), len(dir.Entries))
	}
	for i, e := range exp {
		if got := dir.Entries[i]; got.Name() != e.name || got.Size != e.size {
			t.Errorf("expected entry %d to be %s (%d bytes); got %s (%d bytes)", i, e.name, e.size, got.Name(), got.Size)
		}
	}

	entry, err := dir.Lookup("sh")
	if err != nil {
		t.Fatal(err)
	}
	data, err := bundle.ReadFile(img, entry)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, bytes.Repeat([]byte{0xaa}, 700)) {
		t.Fatal("file contents do not round-trip")
	}
}

func TestRunErrors(t *testing.T) {
	root := t.TempDir()
	longName := filepath.Join(root, strings.Repeat("x", bundle.MaxNameLen+1))
	writeFile(t, longName, []byte{1})

	specs := []struct {
		paths  []string
		expErr string
	}{
		{nil, "no input files"},
		{[]string{filepath.Join(root, "missing")}, "stat"},
		{[]string{longName}, "invalid file name"},
	}

	for specIndex, spec := range specs {
		var out, log bytes.Buffer
		err := run(spec.paths, 0, &out, &log)
		if err == nil || !strings.Contains(err.Error(), spec.expErr) {
			t.Errorf("[spec %d] expected error containing %q; got %v", specIndex, spec.expErr, err)
		}
		if out.Len() != 0 {
			t.Errorf("[spec %d] expected no image output", specIndex)
		}
	}
}
