package seal

import (
	"bytes"
	"errors"
	"testing"

	"github.com/openvitals/vitalexport-core/internal/core/domain"
)

func TestSealOpenRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{},
		[]byte("x"),
		[]byte(`{"metadata":{"schema_version":"1.0"},"data":{}}`),
		bytes.Repeat([]byte{0xAB}, 4096),
	}

	for _, payload := range payloads {
		sealed, err := Seal(payload, "correct horse")
		if err != nil {
			t.Fatalf("Seal(%d bytes): %v", len(payload), err)
		}

		opened, err := Open(sealed, "correct horse")
		if err != nil {
			t.Fatalf("Open(%d bytes): %v", len(payload), err)
		}
		if !bytes.Equal(opened, payload) {
			t.Errorf("round trip of %d bytes mismatched", len(payload))
		}
	}
}

func TestOpenWrongPassword(t *testing.T) {
	sealed, err := Seal([]byte("secret document"), "p")
	if err != nil {
		t.Fatal(err)
	}

	_, err = Open(sealed, "q")
	if !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Errorf("wrong password error = %v, want ErrAuthenticationFailed", err)
	}
}

func TestOpenBitFlip(t *testing.T) {
	payload := []byte("the integrity tag covers every byte")
	sealed, err := Seal(payload, "pw")
	if err != nil {
		t.Fatal(err)
	}

	// Flip one bit at every position: version, salt, nonce, ciphertext, tag
	for i := range sealed {
		tampered := make([]byte, len(sealed))
		copy(tampered, sealed)
		tampered[i] ^= 0x01

		if _, err := Open(tampered, "pw"); !errors.Is(err, domain.ErrAuthenticationFailed) {
			t.Fatalf("bit flip at byte %d: error = %v, want ErrAuthenticationFailed", i, err)
		}
	}
}

func TestOpenTruncated(t *testing.T) {
	sealed, err := Seal([]byte("short"), "pw")
	if err != nil {
		t.Fatal(err)
	}

	for _, n := range []int{0, 1, saltSize, 1 + saltSize + nonceSize - 1} {
		if _, err := Open(sealed[:n], "pw"); !errors.Is(err, domain.ErrAuthenticationFailed) {
			t.Errorf("truncation to %d bytes: error = %v, want ErrAuthenticationFailed", n, err)
		}
	}
}

func TestSealFreshSaltPerCall(t *testing.T) {
	a, err := Seal([]byte("same input"), "pw")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Seal([]byte("same input"), "pw")
	if err != nil {
		t.Fatal(err)
	}

	if bytes.Equal(a[1:1+saltSize], b[1:1+saltSize]) {
		t.Error("two seals reused the same salt")
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same input produced identical blobs")
	}
}
