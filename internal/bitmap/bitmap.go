// Package bitmap encodes sets of station ordinals as compact URL-safe text.
//
// Ordinal i is bit i%8 (least significant first) of byte i/8. The byte
// buffer is as short as the largest ordinal allows and is rendered as
// unpadded URL-safe base64. The empty set encodes to "".
package bitmap

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/RoaringBitmap/roaring"
)

// ErrMalformed is returned when text is not a valid encoded bitmap
var ErrMalformed = errors.New("malformed bitmap")

// legacy links used the standard alphabet. An unescaped "+" reaches us
// as a space once the query string is decoded.
var alphabetFix = strings.NewReplacer("+", "-", " ", "-", "/", "_")

// EncodeOrdinals renders the set as text
func EncodeOrdinals(set *roaring.Bitmap) string {
	if set == nil || set.IsEmpty() {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(ToBytes(set))
}

// ToBytes packs the set into the LSB-first byte layout
func ToBytes(set *roaring.Bitmap) []byte {
	if set == nil || set.IsEmpty() {
		return nil
	}
	buf := make([]byte, set.Maximum()/8+1)
	it := set.Iterator()
	for it.HasNext() {
		id := it.Next()
		buf[id/8] |= 1 << (id % 8)
	}
	return buf
}

// FromBytes unpacks the LSB-first byte layout
func FromBytes(buf []byte) *roaring.Bitmap {
	set := roaring.New()
	for i, b := range buf {
		if b == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				set.Add(uint32(i*8 + bit))
			}
		}
	}
	return set
}

// Decode parses text strictly. Padding and the standard base64 alphabet
// are accepted.
func Decode(text string) (*roaring.Bitmap, error) {
	if text == "" {
		return roaring.New(), nil
	}
	normalized := alphabetFix.Replace(strings.TrimRight(text, "="))
	buf, err := base64.RawURLEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return FromBytes(buf), nil
}

// DecodeOrdinals parses text leniently: malformed input yields an empty set
func DecodeOrdinals(text string) *roaring.Bitmap {
	set, err := Decode(text)
	if err != nil {
		log.Printf("[Bitmap] Warning: failed to decode %q: %v", text, err)
		return roaring.New()
	}
	return set
}
