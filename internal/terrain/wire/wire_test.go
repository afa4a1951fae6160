package wire

import (
	"errors"
	"testing"

	"gridlayer.ai/internal/bitpack"
)

func TestParseGroupHeader_FieldOrder(t *testing.T) {
	var w bitpack.Writer
	w.Pack(264, 16)
	w.Pack(16, 8)
	w.Pack(uint32(Wind), 8)

	g, err := ParseGroupHeader(bitpack.NewCursor(w.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Stride != 264 || g.PatchSize != 16 || g.Type != Wind || g.RawType != 2 {
		t.Fatalf("unexpected header: %+v", g)
	}
}

func TestParseGroupHeader_UnknownTypeIsNotAnError(t *testing.T) {
	var w bitpack.Writer
	w.Pack(16, 16)
	w.Pack(16, 8)
	w.Pack(0x4C, 8)

	g, err := ParseGroupHeader(bitpack.NewCursor(w.Bytes()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Type != Other || g.RawType != 0x4C {
		t.Fatalf("expected OTHER with raw 0x4c, got %+v", g)
	}
}

func TestParseGroupHeader_Truncated(t *testing.T) {
	_, err := ParseGroupHeader(bitpack.NewCursor([]byte{0x00, 0x10, 0x10}))
	if !errors.Is(err, bitpack.ErrTruncated) {
		t.Fatalf("expected truncation, got %v", err)
	}
}

func TestClassifyLayer(t *testing.T) {
	cases := map[uint8]LayerType{0: Land, 1: Water, 2: Wind, 3: Cloud, 4: Other, 255: Other}
	for code, want := range cases {
		if got := ClassifyLayer(code); got != want {
			t.Fatalf("code %d: got %s want %s", code, got, want)
		}
	}
}
