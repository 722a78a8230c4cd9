package vector

import "testing"

func TestEncodeDecode(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 1e-7}
	b := Encode(in)
	if len(b) != 16 {
		t.Fatalf("encoded length = %d, want 16", len(b))
	}
	if EncodedDimensions(b) != 4 {
		t.Errorf("EncodedDimensions = %d", EncodedDimensions(b))
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: got %v, want %v", i, out[i], in[i])
		}
	}
}

func TestDecode_badLength(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
