package processor

import "github.com/pkg/errors"

var (
	// ErrNoInputFiles is returned when a source finds no year files to read.
	ErrNoInputFiles = errors.New("no input year files found")

	// ErrEmptyCorpus is returned when an aggregating stage saw no records at all.
	ErrEmptyCorpus = errors.New("corpus is empty")
)
