package validation

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxScale is the largest rating scale accepted from clients.
const MaxScale = 1000

// MaxFilenameLength bounds uploaded file names, in runes.
const MaxFilenameLength = 255

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

// Collector accumulates validation errors without failing on first.
type Collector struct {
	errors []ValidationError
}

// Add appends a validation error to the collector if non-nil.
func (c *Collector) Add(err *ValidationError) {
	if err != nil {
		c.errors = append(c.errors, *err)
	}
}

// HasErrors returns true if the collector has accumulated any errors.
func (c *Collector) HasErrors() bool {
	return len(c.errors) > 0
}

// Errors returns all accumulated validation errors.
func (c *Collector) Errors() []ValidationError {
	return c.errors
}

// ValidateUTF8 returns an error if the value is not valid UTF-8.
func ValidateUTF8(field, value string) *ValidationError {
	if !utf8.ValidString(value) {
		return &ValidationError{
			Field:   field,
			Message: "must be valid UTF-8",
		}
	}
	return nil
}

// ValidateNoNullBytes returns an error if the value contains null bytes.
func ValidateNoNullBytes(field, value string) *ValidationError {
	if strings.Contains(value, "\x00") {
		return &ValidationError{
			Field:   field,
			Message: "must not contain null bytes",
		}
	}
	return nil
}

// ValidateMaxLength returns an error if the value exceeds max runes.
func ValidateMaxLength(field, value string, max int) *ValidationError {
	if utf8.RuneCountInString(value) > max {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("exceeds maximum length of %d characters", max),
		}
	}
	return nil
}

// ValidateRequired returns an error if the value is empty or whitespace-only.
func ValidateRequired(field, value string) *ValidationError {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   field,
			Message: "is required",
		}
	}
	return nil
}

// ParseTrackID parses a positive decimal track id.
func ParseTrackID(field, raw string) (int64, *ValidationError) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &ValidationError{
			Field:   field,
			Message: "must be a positive integer",
		}
	}
	return id, nil
}

// ParseScale parses a rating scale: finite, greater than zero, at most MaxScale.
func ParseScale(field, raw string) (float64, *ValidationError) {
	scale, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(scale) || math.IsInf(scale, 0) {
		return 0, &ValidationError{
			Field:   field,
			Message: "must be a number",
		}
	}
	if scale <= 0 || scale > MaxScale {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must be greater than 0 and at most %d", MaxScale),
		}
	}
	return scale, nil
}

// ValidateUploadFilename checks a client-supplied file name and returns the
// name to store it under. Directory components are rejected, not stripped.
func ValidateUploadFilename(field, name string, extensions []string) (string, *ValidationError) {
	c := &Collector{}
	c.Add(ValidateRequired(field, name))
	c.Add(ValidateUTF8(field, name))
	c.Add(ValidateNoNullBytes(field, name))
	c.Add(ValidateMaxLength(field, name, MaxFilenameLength))
	if c.HasErrors() {
		e := c.Errors()[0]
		return "", &e
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || filepath.Base(name) != name {
		return "", &ValidationError{
			Field:   field,
			Message: "must be a plain file name",
		}
	}
	if !HasExtension(name, extensions) {
		return "", &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must have one of the extensions: %s", strings.Join(extensions, ", ")),
		}
	}
	return name, nil
}

// HasExtension reports whether name ends in one of extensions, ignoring case.
func HasExtension(name string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
