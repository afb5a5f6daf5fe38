package framestore

import (
	"fmt"
	"image"
	"io"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/fiapx/fiapx-dataset-service/internal/infra/fsx"
)

// IndexWidth is the zero-padded width of the saved-frame index, so lexical
// filename order equals extraction order.
const IndexWidth = 5

type Store struct {
	prefix  string
	ext     string
	format  imaging.Format
	quality int
}

func NewStore(prefix, ext string, jpegQuality int) (*Store, error) {
	format, err := imaging.FormatFromExtension(ext)
	if err != nil {
		return nil, fmt.Errorf("frame format %q: %w", ext, err)
	}
	switch format {
	case imaging.JPEG, imaging.PNG:
	default:
		return nil, fmt.Errorf("frame format %q not supported", ext)
	}
	return &Store{prefix: prefix, ext: ext, format: format, quality: jpegQuality}, nil
}

// FileName returns the name of saved frame index.
func (s *Store) FileName(index int) string {
	return fmt.Sprintf("%s%0*d.%s", s.prefix, IndexWidth, index, s.ext)
}

func (s *Store) Save(dir string, index int, img image.Image) (string, error) {
	path := filepath.Join(dir, s.FileName(index))
	err := fsx.WriteAtomic(path, func(w io.Writer) error {
		return imaging.Encode(w, img, s.format, imaging.JPEGQuality(s.quality))
	})
	if err != nil {
		return "", fmt.Errorf("save frame %d: %w", index, err)
	}
	return path, nil
}
