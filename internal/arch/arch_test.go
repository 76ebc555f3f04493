package arch

import "testing"

func TestFromTriple(t *testing.T) {
	cases := map[string]string{
		"x86_64-unknown-linux-gnu":  "amd64",
		"i686-unknown-linux-gnu":    "i386",
		"aarch64-unknown-linux-gnu": "arm64",
		"armv7-unknown-linux-gnueabihf": "armhf",
	}
	for triple, want := range cases {
		got, err := FromTriple(triple)
		if err != nil {
			t.Fatalf("FromTriple(%q): %v", triple, err)
		}
		if got != want {
			t.Errorf("FromTriple(%q) = %q, want %q", triple, got, want)
		}
	}
}

func TestFromTripleUnknown(t *testing.T) {
	if _, err := FromTriple("mips-unknown-none"); err == nil {
		t.Fatal("expected an error for an unmappable triple")
	}
}
