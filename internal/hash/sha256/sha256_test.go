// Package sha256 includes tests for the fingerprint helper.
package sha256

import "testing"

// TestFingerprintKnownDigest pins the digest of a single field.
func TestFingerprintKnownDigest(t *testing.T) {
	t.Parallel()

	got := Fingerprint("hello world")
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

// TestFingerprintSeparatesFields guards against concatenation collisions.
func TestFingerprintSeparatesFields(t *testing.T) {
	t.Parallel()

	a := Fingerprint("A Study of Graphs", "Foo bar.")
	b := Fingerprint("A Study of Graphs", "Foo bar.")
	if a != b {
		t.Fatalf("expected stable fingerprint, got %s vs %s", a, b)
	}
	if Fingerprint("ab", "c") == Fingerprint("a", "bc") {
		t.Fatal("expected field boundaries to change the fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha256 digest, got %q", a)
	}
}
