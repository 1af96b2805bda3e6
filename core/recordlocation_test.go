package core

import "testing"

func TestLocationRoundTrip(t *testing.T) {
	cases := []Location{
		{SegmentID: 0, Offset: 0, Size: 0},
		{SegmentID: 7, Offset: 123456, Size: 42},
		{SegmentID: 1<<32 - 1, Offset: 1 << 40, Size: 1<<32 - 1},
	}

	for _, loc := range cases {
		buf := EncodeLocation(loc)
		got, err := DecodeLocation(buf)
		if err != nil {
			t.Fatalf("DecodeLocation: %v", err)
		}
		if got != loc {
			t.Fatalf("got %+v, want %+v", got, loc)
		}
	}
}

func TestDecodeLocationMalformed(t *testing.T) {
	if _, err := DecodeLocation(nil); err == nil {
		t.Fatal("expected error decoding empty buffer")
	}
}
