package transport

import "testing"

func TestCipherRoundTrip(t *testing.T) {
	enc := NewCipher(12345)
	dec := NewCipher(12345)

	msg := []byte("hello, world! this is a test frame payload")
	buf := append([]byte(nil), msg...)

	enc.Encrypt(buf)
	if string(buf) == string(msg) {
		t.Fatalf("expected encryption to change the bytes")
	}
	dec.Decrypt(buf)
	if string(buf) != string(msg) {
		t.Fatalf("expected decrypt(encrypt(msg)) == msg, got %q", buf)
	}
}

func TestCipherRollsKeyAcrossFrames(t *testing.T) {
	enc := NewCipher(99)
	dec := NewCipher(99)

	frame1 := []byte("frame one payload!!")
	frame2 := []byte("frame two payload!!")

	b1 := append([]byte(nil), frame1...)
	b2 := append([]byte(nil), frame2...)
	enc.Encrypt(b1)
	enc.Encrypt(b2)

	dec.Decrypt(b1)
	dec.Decrypt(b2)

	if string(b1) != string(frame1) || string(b2) != string(frame2) {
		t.Fatalf("expected both frames to decrypt correctly under the rolling key")
	}
}

func TestCipherShortFramePassesThroughUnmodified(t *testing.T) {
	c := NewCipher(1)
	data := []byte{1, 2, 3}
	out := c.Encrypt(data)
	if string(out) != "\x01\x02\x03" {
		t.Fatalf("expected frames under 4 bytes to pass through unmodified, got %v", out)
	}
}
