package validation

import (
	"math"
	"strings"
	"testing"
)

// --- ValidateUTF8 Tests ---

func TestValidateUTF8_Valid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"ascii", "hello world"},
		{"empty", ""},
		{"unicode", "Hello, 世界"},
		{"emoji", "Hello 👋🏻"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUTF8("field", tt.value)
			if err != nil {
				t.Errorf("ValidateUTF8(%q) = %v, want nil", tt.value, err)
			}
		})
	}
}

func TestValidateUTF8_Invalid(t *testing.T) {
	invalidUTF8 := string([]byte{0xff, 0xfe})

	err := ValidateUTF8("content", invalidUTF8)
	if err == nil {
		t.Fatal("ValidateUTF8(invalid) = nil, want error")
	}
	if err.Field != "content" {
		t.Errorf("error.Field = %q, want %q", err.Field, "content")
	}
}

// --- ValidateNoNullBytes / ValidateMaxLength ---

func TestValidateNoNullBytes_WithNull(t *testing.T) {
	if err := ValidateNoNullBytes("field", "a\x00b"); err == nil {
		t.Error("ValidateNoNullBytes() = nil, want error")
	}
	if err := ValidateNoNullBytes("field", "clean"); err != nil {
		t.Errorf("ValidateNoNullBytes(clean) = %v, want nil", err)
	}
}

func TestValidateMaxLength_MultibyteRunes(t *testing.T) {
	value := strings.Repeat("世", 10)
	if err := ValidateMaxLength("field", value, 10); err != nil {
		t.Errorf("10 runes at limit 10 = %v, want nil", err)
	}
	if err := ValidateMaxLength("field", value, 9); err == nil {
		t.Error("10 runes at limit 9 = nil, want error")
	}
}

func TestValidateRequired_WhitespaceOnly(t *testing.T) {
	if err := ValidateRequired("field", "  \t"); err == nil {
		t.Error("ValidateRequired(whitespace) = nil, want error")
	}
}

// --- ParseTrackID ---

func TestParseTrackID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{"1", 1, false},
		{"4242", 4242, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"1.5", 0, true},
		{"99999999999999999999", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseTrackID("id", tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTrackID(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTrackID(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

// --- ParseScale ---

func TestParseScale(t *testing.T) {
	tests := []struct {
		raw     string
		want    float64
		wantErr bool
	}{
		{"2.5", 2.5, false},
		{"1", 1, false},
		{"0.5", 0.5, false},
		{"1000", 1000, false},
		{"1000.5", 0, true},
		{"0", 0, true},
		{"-2", 0, true},
		{"NaN", 0, true},
		{"Inf", 0, true},
		{"loud", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseScale("scale", tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScale(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("ParseScale(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

// --- ValidateUploadFilename ---

func TestValidateUploadFilename(t *testing.T) {
	exts := []string{".mp3", ".flac"}
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"plain mp3", "song.mp3", false},
		{"upper case extension", "SONG.MP3", false},
		{"flac", "track 01.flac", false},
		{"unicode", "Über Lied.mp3", false},
		{"empty", "", true},
		{"traversal", "../etc/passwd.mp3", true},
		{"nested", "dir/song.mp3", true},
		{"backslash", `dir\song.mp3`, true},
		{"dot dot", "..", true},
		{"wrong extension", "song.exe", true},
		{"no extension", "song", true},
		{"null byte", "so\x00ng.mp3", true},
		{"too long", strings.Repeat("a", 300) + ".mp3", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateUploadFilename("file", tt.input, exts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateUploadFilename(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.input {
				t.Errorf("ValidateUploadFilename(%q) = %q", tt.input, got)
			}
			if err != nil && err.Field != "file" {
				t.Errorf("error.Field = %q, want %q", err.Field, "file")
			}
		})
	}
}

// --- Collector ---

func TestCollector_AccumulatesErrors(t *testing.T) {
	c := &Collector{}
	c.Add(&ValidationError{Field: "a", Message: "bad"})
	c.Add(nil)
	c.Add(&ValidationError{Field: "b", Message: "worse"})

	if !c.HasErrors() {
		t.Fatal("HasErrors() = false, want true")
	}
	if len(c.Errors()) != 2 {
		t.Errorf("len(Errors()) = %d, want 2", len(c.Errors()))
	}
}

func TestCollector_HasErrors_Empty(t *testing.T) {
	c := &Collector{}
	if c.HasErrors() {
		t.Error("HasErrors() on empty collector = true, want false")
	}
}
