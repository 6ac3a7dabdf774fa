package auth

import "testing"

func TestHashAndVerify(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the plain password")
	}

	if !VerifyPassword(hash, "s3cret") {
		t.Error("Expected correct password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("Expected wrong password to fail verification")
	}
}
