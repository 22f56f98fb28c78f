package tokencrypt

import "testing"

func TestSealUnseal(t *testing.T) {
	c, err := New("test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sealed, err := c.Seal("EDL-token-abc123")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if sealed == "EDL-token-abc123" {
		t.Fatalf("Seal: token not sealed")
	}

	got, err := c.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if got != "EDL-token-abc123" {
		t.Fatalf("Unseal: expected original token, got %q", got)
	}

	// A second seal of the same token must not repeat ciphertext.
	sealed2, err := c.Seal("EDL-token-abc123")
	if err != nil {
		t.Fatalf("Seal #2: %v", err)
	}
	if sealed2 == sealed {
		t.Fatalf("Seal: nonce reuse")
	}
}

func TestUnsealRejectsGarbage(t *testing.T) {
	c, err := New("test-secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Unseal("not-base64!!"); err == nil {
		t.Fatalf("Unseal: expected error for bad encoding")
	}
	if _, err := c.Unseal("YWJj"); err == nil {
		t.Fatalf("Unseal: expected error for short payload")
	}

	other, err := New("different-secret")
	if err != nil {
		t.Fatalf("New other: %v", err)
	}
	sealed, err := c.Seal("tok")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := other.Unseal(sealed); err == nil {
		t.Fatalf("Unseal: expected error for wrong key")
	}
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("New: expected error for empty secret")
	}
}
