package dbpftype

// ProgressEvent represents a progress update during a catalog build.
type ProgressEvent struct {
	// Stage identifies the current phase of the build.
	Stage ProgressStage

	// Path is the file currently being processed, if applicable.
	Path string

	// FilesDone is the number of files completed in the current stage.
	FilesDone int

	// FilesTotal is the total number of files.
	// Zero indicates the total is unknown (e.g., during scanning).
	FilesTotal int
}

// ProgressStage identifies the current phase of a catalog build.
type ProgressStage uint8

// Catalog build states, in order.
const (
	// StageIdle indicates nothing has started.
	StageIdle ProgressStage = iota

	// StageScanning indicates the roots are being walked.
	StageScanning

	// StageParsing indicates archive headers and indexes are being read.
	StageParsing

	// StageMerging indicates entries are being override-resolved.
	StageMerging

	// StageFamilyIndexing indicates exemplar families are being collected.
	StageFamilyIndexing

	// StageReady indicates the catalog can be queried.
	StageReady
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageScanning:
		return "scanning"
	case StageParsing:
		return "parsing"
	case StageMerging:
		return "merging"
	case StageFamilyIndexing:
		return "family indexing"
	case StageReady:
		return "ready"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during a build.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)
