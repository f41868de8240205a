package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/jukebox/internal/jukebox"
	"github.com/hyperengineering/jukebox/internal/store"
	"github.com/hyperengineering/jukebox/internal/validation"
)

// Problem represents an RFC 7807 Problem Details response.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// problemTypes maps HTTP status codes to RFC 7807 type URIs and titles.
var problemTypes = map[int]struct {
	typeURI string
	title   string
}{
	http.StatusUnauthorized: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/unauthorized",
		title:   "Unauthorized",
	},
	http.StatusBadRequest: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/bad-request",
		title:   "Bad Request",
	},
	http.StatusNotFound: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/not-found",
		title:   "Not Found",
	},
	http.StatusInternalServerError: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/internal-error",
		title:   "Internal Server Error",
	},
	http.StatusUnprocessableEntity: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/validation-error",
		title:   "Validation Error",
	},
	http.StatusConflict: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/conflict",
		title:   "Conflict",
	},
	http.StatusRequestEntityTooLarge: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/too-large",
		title:   "Payload Too Large",
	},
	http.StatusTooManyRequests: {
		typeURI: "https://jukebox.hyperengineering.dev/errors/rate-limit",
		title:   "Too Many Requests",
	},
}

// WriteProblem writes an RFC 7807 Problem Details response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	pt, ok := problemTypes[status]
	if !ok {
		pt = struct {
			typeURI string
			title   string
		}{
			typeURI: "https://jukebox.hyperengineering.dev/errors/unknown",
			title:   http.StatusText(status),
		}
	}

	p := Problem{
		Type:     pt.typeURI,
		Title:    pt.title,
		Status:   status,
		Detail:   detail,
		Instance: r.URL.Path,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// ProblemWithErrors extends Problem with validation error details.
type ProblemWithErrors struct {
	Problem
	Errors []validation.ValidationError `json:"errors,omitempty"`
}

// WriteProblemWithErrors writes a 400 Problem Details response with field errors.
func WriteProblemWithErrors(w http.ResponseWriter, r *http.Request, detail string, errs []validation.ValidationError) {
	pt := problemTypes[http.StatusBadRequest]

	p := ProblemWithErrors{
		Problem: Problem{
			Type:     pt.typeURI,
			Title:    pt.title,
			Status:   http.StatusBadRequest,
			Detail:   detail,
			Instance: r.URL.Path,
		},
		Errors: errs,
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	if err := json.NewEncoder(w).Encode(p); err != nil {
		slog.Error("failed to encode problem response", "error", err)
	}
}

// writeValidationError writes a single field error as a 400 problem.
func writeValidationError(w http.ResponseWriter, r *http.Request, verr *validation.ValidationError) {
	WriteProblemWithErrors(w, r, verr.Error(), []validation.ValidationError{*verr})
}

// MapJukeboxError converts domain errors to Problem Details responses.
func MapJukeboxError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, jukebox.ErrNotFound), errors.Is(err, store.ErrNotFound):
		WriteProblem(w, r, http.StatusNotFound, "Track not found")
	case errors.Is(err, jukebox.ErrEmptyPopulation):
		WriteProblem(w, r, http.StatusConflict, "No tracks are eligible for selection")
	case errors.Is(err, jukebox.ErrSelectionExhausted):
		WriteProblem(w, r, http.StatusConflict, "Every eligible track was played recently")
	case errors.Is(err, jukebox.ErrInvalidScale):
		WriteProblem(w, r, http.StatusBadRequest, "Scale must be a finite number greater than zero")
	case errors.Is(err, jukebox.ErrInvalidDirection):
		WriteProblem(w, r, http.StatusBadRequest, "Vote direction must be up or down")
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"method", r.Method,
			"error", err,
		)
		// Never expose internal error details to client
		WriteProblem(w, r, http.StatusInternalServerError, "Internal Server Error")
	}
}
