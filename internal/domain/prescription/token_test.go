package prescription

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestSigner_RoundTrip(t *testing.T) {
	signer := NewSigner("0123456789abcdef0123456789abcdef")
	prescriptionID, providerID := uuid.New(), uuid.New()

	token, err := signer.Sign(prescriptionID, providerID, time.Now().UTC())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	gotID, gotProvider, err := signer.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if gotID != prescriptionID {
		t.Errorf("prescription id = %s, want %s", gotID, prescriptionID)
	}
	if gotProvider != providerID {
		t.Errorf("provider id = %s, want %s", gotProvider, providerID)
	}
}

func TestSigner_WrongSecret(t *testing.T) {
	signer := NewSigner("0123456789abcdef0123456789abcdef")
	token, err := signer.Sign(uuid.New(), uuid.New(), time.Now().UTC())
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	other := NewSigner("ffffffffffffffffffffffffffffffff")
	if _, _, err := other.Verify(token); err == nil {
		t.Error("expected verification to fail with a different secret")
	}
}

func TestSigner_Garbage(t *testing.T) {
	signer := NewSigner("0123456789abcdef0123456789abcdef")
	if _, _, err := signer.Verify("not.a.token"); err == nil {
		t.Error("expected an error for a malformed token")
	}
}
