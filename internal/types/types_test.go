package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestTrack_JSONFieldNames(t *testing.T) {
	track := Track{
		ID:              7,
		Path:            "/music/a.mp3",
		Filename:        "a.mp3",
		Title:           "Song",
		DurationLabel:   "3:05",
		DurationSeconds: 185,
		Rating:          4,
		TimesPlayed:     12,
	}

	data, err := json.Marshal(track)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	s := string(data)
	for _, key := range []string{`"id":7`, `"duration_label":"3:05"`, `"duration_seconds":185`, `"rating":4`, `"times_played":12`, `"deleted":false`} {
		if !strings.Contains(s, key) {
			t.Errorf("JSON %s missing %s", s, key)
		}
	}
}

func TestHealthResponse_NullSnapshot(t *testing.T) {
	data, err := json.Marshal(HealthResponse{Status: "healthy", SchemaVersion: "4"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"last_snapshot":null`) {
		t.Errorf("expected explicit null last_snapshot, got %s", data)
	}
}

func TestCatalogStats_OmitsEmptySnapshot(t *testing.T) {
	data, err := json.Marshal(CatalogStats{Ratings: map[int]int{2: 5}})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if strings.Contains(string(data), "last_snapshot") {
		t.Errorf("last_snapshot should be omitted when nil, got %s", data)
	}
	if !strings.Contains(string(data), `"ratings":{"2":5}`) {
		t.Errorf("ratings histogram not encoded as expected: %s", data)
	}
}
