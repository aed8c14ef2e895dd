package dbpf

import "github.com/meigma/dbpf/internal/dbpftype"

// Sentinel errors re-exported from internal/dbpftype.
var (
	// ErrCorruptArchive is returned when a header, index, directory or record is malformed.
	ErrCorruptArchive = dbpftype.ErrCorruptArchive

	// ErrDecodeFailure is returned when a decompressed payload does not match its declared size.
	ErrDecodeFailure = dbpftype.ErrDecodeFailure

	// ErrNotFound is returned by helpers that must report a missing TGI as an error.
	// Lookups themselves return a boolean instead.
	ErrNotFound = dbpftype.ErrNotFound

	// ErrPartialScan is wrapped by every per-file catalog scan warning.
	ErrPartialScan = dbpftype.ErrPartialScan

	// ErrSizeOverflow is returned when sizes exceed the format's 32-bit fields.
	ErrSizeOverflow = dbpftype.ErrSizeOverflow

	// ErrUnsupported is returned for encodings that are recognised but not parsed.
	ErrUnsupported = dbpftype.ErrUnsupported
)
