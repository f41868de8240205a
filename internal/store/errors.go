package store

import "errors"

var (
	ErrNotFound = errors.New("track not found")
	ErrNoRows   = errors.New("no rows in result")
)
