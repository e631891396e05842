package addriver

import "testing"

func TestMintAvoidsExistingNames(t *testing.T) {
	ns := NewNameSet([]string{"f_fwd"})
	got := ns.Mint("f", "_fwd")
	if got != "f_fwd2" {
		t.Errorf("Mint = %q, want %q", got, "f_fwd2")
	}
}

func TestMintIsCollisionFreeAcrossCalls(t *testing.T) {
	ns := NewNameSet(nil)
	first := ns.Mint("f", "_fwd")
	second := ns.Mint("f", "_fwd")
	if first == second {
		t.Errorf("Mint returned the same name twice: %q", first)
	}
}

func TestMintNormalizesToNFC(t *testing.T) {
	// Two spellings of the same name: one with a precomposed e-acute
	// (U+00E9), one with a bare "e" followed by a combining acute accent
	// (U+0301). A reader calls these the same identifier; Mint must too.
	precomposed := "café"
	decomposed := "café"
	if precomposed == decomposed {
		t.Fatalf("test fixture bug: the two spellings must differ byte-for-byte")
	}

	ns := NewNameSet([]string{precomposed})
	got := ns.Mint(decomposed, "_fwd")
	want := precomposed + "_fwd"
	if got != want {
		t.Errorf("Mint(%q) = %q, want %q (NFC-normalized)", decomposed, got, want)
	}
}
