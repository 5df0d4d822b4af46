package packet

import "testing"

func TestWriterReaderRoundTrip(t *testing.T) {
	w := NewWriterWithOpcode(0x42)
	w.WriteC(7)
	w.WriteH(1000)
	w.WriteD(-500)
	w.WriteS("hello")

	r := NewReader(w.RawBytes())
	if r.Opcode() != 0x42 {
		t.Fatalf("expected opcode 0x42, got 0x%x", r.Opcode())
	}
	if v := r.ReadC(); v != 7 {
		t.Fatalf("expected ReadC()=7, got %d", v)
	}
	if v := r.ReadH(); v != 1000 {
		t.Fatalf("expected ReadH()=1000, got %d", v)
	}
	if v := r.ReadD(); v != -500 {
		t.Fatalf("expected ReadD()=-500, got %d", v)
	}
	if v := r.ReadS(); v != "hello" {
		t.Fatalf("expected ReadS()=hello, got %q", v)
	}
}

func TestWriterBytesPadsToFourByteBoundary(t *testing.T) {
	w := NewWriterWithOpcode(0x01)
	w.WriteC(1)
	if len(w.Bytes())%4 != 0 {
		t.Fatalf("expected padded length to be a multiple of 4, got %d", len(w.Bytes()))
	}
}

func TestReaderHandlesBig5RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteS("測試")
	r := NewReader(append([]byte{0}, w.RawBytes()...))
	if got := r.ReadS(); got != "測試" {
		t.Fatalf("expected Big5 round-trip to preserve the string, got %q", got)
	}
}
