package utils

import "testing"

func TestCipherRoundTrip(t *testing.T) {
	c := NewCipher("test-passphrase")

	for _, plain := range []string{"hunter2", "a much longer smtp password with spaces", "ütf-8 ✓"} {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if enc == plain {
			t.Fatalf("ciphertext equals plaintext for %q", plain)
		}
		dec, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if dec != plain {
			t.Fatalf("round trip got %q, want %q", dec, plain)
		}
	}
}

func TestCipherEmptyString(t *testing.T) {
	c := NewCipher("k")
	enc, err := c.Encrypt("")
	if err != nil || enc != "" {
		t.Fatalf("Encrypt(\"\") = %q, %v", enc, err)
	}
	dec, err := c.Decrypt("")
	if err != nil || dec != "" {
		t.Fatalf("Decrypt(\"\") = %q, %v", dec, err)
	}
}

func TestCipherRejectsShortCiphertext(t *testing.T) {
	c := NewCipher("k")
	if _, err := c.Decrypt("YWJj"); err == nil {
		t.Fatal("expected error for truncated ciphertext")
	}
}

func TestCipherDifferentKeysDiffer(t *testing.T) {
	enc, err := NewCipher("key-one").Encrypt("secret")
	if err != nil {
		t.Fatal(err)
	}
	dec, err := NewCipher("key-two").Decrypt(enc)
	if err == nil && dec == "secret" {
		t.Fatal("decryption with wrong key recovered plaintext")
	}
}
