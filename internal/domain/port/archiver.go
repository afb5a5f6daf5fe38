package port

import "context"

// Archiver writes filePaths, in the given order, into a flat archive at
// outputPath, replacing any previous archive there.
type Archiver interface {
	CreateArchive(ctx context.Context, filePaths []string, outputPath string) error
}
