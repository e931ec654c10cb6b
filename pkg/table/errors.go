package table

import "errors"

// ErrMissingColumn marks a table that lacks a column a stage step requires.
// Stages treat it as a skip-with-warning condition, not a fatal error.
var ErrMissingColumn = errors.New("required column missing")

// ErrMissingInput marks an input file absent from the cohort directory.
var ErrMissingInput = errors.New("input file missing")
