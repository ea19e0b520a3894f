package bitmap

import (
	"errors"
	"net/url"
	"testing"

	"github.com/RoaringBitmap/roaring"
)

func TestEncodeOrdinals(t *testing.T) {
	tests := []struct {
		name     string
		ordinals []uint32
		want     string
	}{
		{"empty", nil, ""},
		{"first", []uint32{0}, "AQ"},
		{"second", []uint32{1}, "Ag"},
		{"third", []uint32{2}, "BA"},
		{"first three", []uint32{0, 1, 2}, "Bw"},
		{"9 and 99", []uint32{9, 99}, "AAIAAAAAAAAAAAAACA"},
		{"24", []uint32{24}, "AAAAAQ"},
		{"49", []uint32{49}, "AAAAAAAAAg"},
		{"74", []uint32{74}, "AAAAAAAAAAAABA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeOrdinals(roaring.BitmapOf(tt.ordinals...))
			if got != tt.want {
				t.Errorf("EncodeOrdinals(%v) = %q, want %q", tt.ordinals, got, tt.want)
			}
		})
	}
}

func TestEncodeNil(t *testing.T) {
	if got := EncodeOrdinals(nil); got != "" {
		t.Errorf("EncodeOrdinals(nil) = %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	sets := [][]uint32{
		{},
		{0},
		{7, 8},
		{0, 1, 2, 3, 4, 5, 6, 7},
		{3, 64, 1000, 1145},
	}
	for _, ordinals := range sets {
		in := roaring.BitmapOf(ordinals...)
		out := DecodeOrdinals(EncodeOrdinals(in))
		if !out.Equals(in) {
			t.Errorf("round trip of %v gave %v", ordinals, out.ToArray())
		}
	}
}

func TestDecodeAcceptsPaddingAndStandardAlphabet(t *testing.T) {
	tests := []struct {
		text string
		want []uint32
	}{
		{"AQ==", []uint32{0}},
		{"AQ", []uint32{0}},
		// 0xfb: every bit but the third
		{"+w", []uint32{0, 1, 3, 4, 5, 6, 7}},
		{"-w", []uint32{0, 1, 3, 4, 5, 6, 7}},
		{" w", []uint32{0, 1, 3, 4, 5, 6, 7}},
		// 0xff
		{"/w==", []uint32{0, 1, 2, 3, 4, 5, 6, 7}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := Decode(tt.text)
			if err != nil {
				t.Fatalf("Decode(%q): %v", tt.text, err)
			}
			if !got.Equals(roaring.BitmapOf(tt.want...)) {
				t.Errorf("Decode(%q) = %v, want %v", tt.text, got.ToArray(), tt.want)
			}
		})
	}
}

func TestDecodeUnescapedPlusFromQuery(t *testing.T) {
	params, err := url.ParseQuery("c1=+w&mode=shared")
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(params.Get("c1"))
	if err != nil {
		t.Fatalf("Decode(%q): %v", params.Get("c1"), err)
	}
	if !got.Equals(roaring.BitmapOf(0, 1, 3, 4, 5, 6, 7)) {
		t.Errorf("got %v", got.ToArray())
	}
}

func TestDecodeTrailingZeroBytes(t *testing.T) {
	// 0x01 0x00 0x00
	got := DecodeOrdinals("AQAA")
	if !got.Equals(roaring.BitmapOf(0)) {
		t.Errorf("got %v, want [0]", got.ToArray())
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, text := range []string{"!!", "A", "a*b"} {
		t.Run(text, func(t *testing.T) {
			_, err := Decode(text)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("Decode(%q) err = %v, want ErrMalformed", text, err)
			}
			if set := DecodeOrdinals(text); !set.IsEmpty() {
				t.Errorf("DecodeOrdinals(%q) = %v, want empty", text, set.ToArray())
			}
		})
	}
}

func TestToBytesLayout(t *testing.T) {
	buf := ToBytes(roaring.BitmapOf(9, 99))
	if len(buf) != 13 {
		t.Fatalf("len = %d, want 13", len(buf))
	}
	if buf[1] != 0x02 || buf[12] != 0x08 {
		t.Errorf("unexpected layout % x", buf)
	}
}
