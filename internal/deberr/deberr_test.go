package deberr

import (
	"errors"
	"testing"
)

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewConfig("bad field", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find the wrapped cause")
	}

	var cfg *Config
	if !errors.As(err, &cfg) {
		t.Fatalf("expected errors.As to recover *Config")
	}
	if cfg.Msg != "bad field" {
		t.Errorf("got Msg %q", cfg.Msg)
	}
}

func TestArchitectureNoCause(t *testing.T) {
	err := NewArchitecture("mips-unknown-none")
	if err.Error() == "" {
		t.Fatal("expected non-empty message")
	}
}
