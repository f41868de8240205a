package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestSentinelErrors_WrappedIdentity(t *testing.T) {
	sentinels := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrNoRows", ErrNoRows},
	}

	for _, s := range sentinels {
		t.Run(s.name, func(t *testing.T) {
			if s.err.Error() == "" {
				t.Fatal("Sentinel error should have a message")
			}
			wrapped := fmt.Errorf("operation failed: %w", s.err)
			if !errors.Is(wrapped, s.err) {
				t.Errorf("errors.Is should return true for wrapped %s", s.name)
			}
		})
	}
}

func TestSentinelErrors_Distinct(t *testing.T) {
	if errors.Is(ErrNotFound, ErrNoRows) || errors.Is(ErrNoRows, ErrNotFound) {
		t.Error("ErrNotFound and ErrNoRows must not match each other")
	}
}

func TestGetTrack_NotFoundSentinel(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTrack(context.Background(), 404)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTrack() error = %v, want ErrNotFound", err)
	}
}
