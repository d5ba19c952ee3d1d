package bitio

import "testing"

func TestBitWriter_RoundTrip(t *testing.T) {
	bw := NewBitWriter(0)
	bw.WriteBits(0x5, 3)
	bw.WriteBit(true)
	bw.WriteSigned(-17, 6)
	bw.WriteUvlc(0)
	bw.WriteUvlc(300)
	bw.WriteBits(0xDEADBEEF, 32)
	data := bw.Bytes()

	br := NewBitReader(data)
	if got := br.ReadBits(3); got != 5 {
		t.Errorf("ReadBits(3) = %d, want 5", got)
	}
	if !br.ReadBit() {
		t.Error("ReadBit() = false, want true")
	}
	if got := br.ReadSigned(6); got != -17 {
		t.Errorf("ReadSigned = %d, want -17", got)
	}
	if got := br.ReadUvlc(); got != 0 {
		t.Errorf("ReadUvlc = %d, want 0", got)
	}
	if got := br.ReadUvlc(); got != 300 {
		t.Errorf("ReadUvlc = %d, want 300", got)
	}
	if got := br.ReadBits(32); got != 0xDEADBEEF {
		t.Errorf("ReadBits(32) = %#x, want 0xdeadbeef", got)
	}
	if br.Err() != nil {
		t.Errorf("Err() = %v", br.Err())
	}
	br.ReadBits(16)
	if br.Err() != ErrUnexpectedEOF {
		t.Errorf("Err() = %v, want ErrUnexpectedEOF", br.Err())
	}
}

func TestLeb128(t *testing.T) {
	tests := []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<35 + 7}
	for _, v := range tests {
		buf := AppendLeb128(nil, v)
		if len(buf) != Leb128Size(v) {
			t.Errorf("Leb128Size(%d) = %d, encoded %d bytes", v, Leb128Size(v), len(buf))
		}
		got, n, err := ReadLeb128(buf)
		if err != nil || got != v || n != len(buf) {
			t.Errorf("ReadLeb128(%x) = %d, %d, %v; want %d, %d, nil", buf, got, n, err, v, len(buf))
		}
	}
	if _, _, err := ReadLeb128([]byte{0x80, 0x80}); err != ErrLeb128 {
		t.Errorf("truncated leb128 err = %v, want ErrLeb128", err)
	}
}
