package framing

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Seq: 42, Payload: []byte("hello world")}
	data := Encode(f)
	if len(data) != HeaderSize+len(f.Payload) {
		t.Fatalf("encoded length = %d, want %d", len(data), HeaderSize+len(f.Payload))
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != f.Seq || string(got.Payload) != string(f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for data shorter than header")
	}
}

func TestDecodeClampsOverstatedLength(t *testing.T) {
	data := Encode(Frame{Seq: 1, Payload: []byte("0123456789")})
	// Lie about the length: claim 100 bytes of payload when only 10 are present.
	data[4], data[5], data[6], data[7] = 0, 0, 0, 100

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got.Payload) != 10 {
		t.Fatalf("expected payload clamped to 10 bytes, got %d", len(got.Payload))
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	data := Encode(Frame{Seq: 7, Payload: nil})
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Seq != 7 || len(got.Payload) != 0 {
		t.Fatalf("got %+v, want seq=7 empty payload", got)
	}
}
