package source

type (
	// FileID uniquely identifies a source file within a FileSet.
	FileID uint32
	// FileFlags encodes metadata recorded while loading a source file.
	FileFlags uint8
)

const (
	// FileVirtual marks a file added from memory (tests, generated fixtures).
	FileVirtual FileFlags = 1 << iota
	FileHadBOM
	FileNormalizedCRLF
)

// File holds the content and line index for one loaded source file.
type File struct {
	ID      FileID
	Path    string
	Content []byte
	LineIdx []uint32
	Hash    [32]byte
	Flags   FileFlags
}

// LineCol is a human-readable 1-based line/column position.
type LineCol struct {
	Line uint32
	Col  uint32
}
