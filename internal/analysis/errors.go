package analysis

import "errors"

var (
	// ErrMalformedSeries means the input sequence violated ordering or
	// uniqueness. Callers fix their ordering upstream; nothing is sorted here.
	ErrMalformedSeries = errors.New("malformed series")

	// ErrEmptySeries means there was no input at all to analyze.
	ErrEmptySeries = errors.New("empty series")

	// ErrInsufficientIndicators means too few indicators were present to back
	// a confident prediction. The instrument is skipped this run.
	ErrInsufficientIndicators = errors.New("insufficient indicators")
)
