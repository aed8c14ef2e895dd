package dbpftype

import "errors"

// Sentinel errors for archive and catalog operations.
var (
	// ErrCorruptArchive is returned when a header, index, directory or record is malformed.
	ErrCorruptArchive = errors.New("dbpf: corrupt archive")

	// ErrDecodeFailure is returned when a decompressed payload does not match its declared size.
	ErrDecodeFailure = errors.New("dbpf: decode failure")

	// ErrNotFound is returned by helpers that must report a missing TGI as an error.
	ErrNotFound = errors.New("dbpf: not found")

	// ErrPartialScan is wrapped by every per-file catalog scan warning.
	ErrPartialScan = errors.New("dbpf: partial scan failure")

	// ErrSizeOverflow is returned when byte counts exceed format limits.
	ErrSizeOverflow = errors.New("dbpf: size overflow")

	// ErrUnsupported is returned for encodings that are recognised but not parsed.
	ErrUnsupported = errors.New("dbpf: unsupported encoding")
)
