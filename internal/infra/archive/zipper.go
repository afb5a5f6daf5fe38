package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fiapx/fiapx-dataset-service/internal/infra/fsx"
)

// entryTime is stamped on every entry so identical inputs give identical
// archives.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type ZipCreator struct{}

func NewZipCreator() *ZipCreator {
	return &ZipCreator{}
}

// CreateArchive writes a flat zip of filePaths, in order, to outputPath.
// The archive only appears at outputPath once fully written.
func (z *ZipCreator) CreateArchive(ctx context.Context, filePaths []string, outputPath string) error {
	seen := make(map[string]string, len(filePaths))
	for _, fp := range filePaths {
		name := filepath.Base(fp)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("entry %s from both %s and %s", name, prev, fp)
		}
		seen[name] = fp
	}

	return fsx.WriteAtomic(outputPath, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, fp := range filePaths {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := addFileToZip(zw, fp); err != nil {
				return fmt.Errorf("add %s to zip: %w", fp, err)
			}
		}
		return zw.Close()
	})
}

func addFileToZip(zw *zip.Writer, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	header := &zip.FileHeader{
		Name:     filepath.Base(filename),
		Method:   zip.Deflate,
		Modified: entryTime,
	}
	header.SetMode(0o644)

	writer, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(writer, file)
	return err
}
