package kernel

import "testing"

func TestMemset(t *testing.T) {
	// Memset with a 0 size should be a no-op
	Memset(nil, 0x00)

	for pageCount := 1; pageCount <= 10; pageCount++ {
		buf := make([]byte, 4096*pageCount)
		for i := 0; i < len(buf); i++ {
			buf[i] = 0xFE
		}

		Memset(buf, 0x00)

		for i := 0; i < len(buf); i++ {
			if got := buf[i]; got != 0x00 {
				t.Errorf("[block with %d pages] expected byte: %d to be 0x00; got 0x%x", pageCount, i, got)
			}
		}
	}
}

func TestMemcopy(t *testing.T) {
	var (
		src = make([]byte, 512)
		dst = make([]byte, 512)
	)

	for i := 0; i < len(src); i++ {
		src[i] = byte(i % 256)
	}

	if got := Memcopy(src, dst); got != len(src) {
		t.Fatalf("expected Memcopy to copy %d bytes; got %d", len(src), got)
	}

	for i := 0; i < len(dst); i++ {
		if got := dst[i]; got != src[i] {
			t.Errorf("expected byte: %d to be 0x%x; got 0x%x", i, src[i], got)
		}
	}
}
