package archive

import "testing"

func TestPackUnpackChunkHeader_RoundTrip(t *testing.T) {
	cases := []struct {
		length int
		last   bool
	}{
		{1, false},
		{1, true},
		{65536, false},
		{int(maxFrameLength) - 1, true},
	}
	for _, c := range cases {
		h, err := PackChunkHeader(c.length, c.last)
		if err != nil {
			t.Fatalf("PackChunkHeader(%d, %v): %v", c.length, c.last, err)
		}
		length, last := UnpackChunkHeader(h)
		if length != c.length || last != c.last {
			t.Fatalf("round trip mismatch: got (%d, %v), want (%d, %v)", length, last, c.length, c.last)
		}
	}
}

func TestPackChunkHeader_RejectsInvalidLengths(t *testing.T) {
	if _, err := PackChunkHeader(0, false); err == nil {
		t.Error("expected error for zero length")
	}
	if _, err := PackChunkHeader(-1, false); err == nil {
		t.Error("expected error for negative length")
	}
	if _, err := PackChunkHeader(int(maxFrameLength)+1, false); err == nil {
		t.Error("expected error for length exceeding the 31-bit frame limit")
	}
}

func TestChunkFramer_EncodeDecode(t *testing.T) {
	var f ChunkFramer
	buf, err := f.EncodeHeader(42, true)
	if err != nil {
		t.Fatalf("EncodeHeader: %v", err)
	}
	length, last := f.DecodeHeader(buf)
	if length != 42 || !last {
		t.Fatalf("got (%d, %v), want (42, true)", length, last)
	}
}
