package core

import (
	"errors"
	"testing"
)

func TestParseActorType(t *testing.T) {
	for _, at := range ActorTypes {
		got, err := ParseActorType(string(at))
		if err != nil {
			t.Fatalf("ParseActorType(%q) returned error: %v", at, err)
		}
		if got != at {
			t.Errorf("expected %q, got %q", at, got)
		}
	}

	if _, err := ParseActorType("casual"); !errors.Is(err, ErrUnknownActorType) {
		t.Errorf("expected ErrUnknownActorType, got %v", err)
	}
}

func TestClampActivity(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-1, MinActivity},
		{0, MinActivity},
		{0.1, 0.1},
		{2.5, 2.5},
		{5.0, 5.0},
		{7.3, MaxActivity},
	}
	for _, tt := range tests {
		if got := ClampActivity(tt.in); got != tt.want {
			t.Errorf("ClampActivity(%v) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}
