package usecase

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"go.uber.org/zap"
)

var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".flv": true, ".wmv": true,
}

var streamSchemes = map[string]bool{
	"http": true, "https": true, "rtsp": true, "rtmp": true, "udp": true,
}

const devicePrefix = "device:"

// SourceResolver classifies a user-supplied video reference. It never
// touches the network: stream reachability is found out when the
// extractor opens the source.
type SourceResolver struct {
	logger *zap.Logger
}

func NewSourceResolver(logger *zap.Logger) *SourceResolver {
	return &SourceResolver{logger: logger}
}

// Resolve accepts a bare integer or "device:N" (camera), a URI with a
// supported scheme (stream), or a path to an existing video file.
func (r *SourceResolver) Resolve(reference string) (entity.VideoSource, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return entity.VideoSource{}, invalidSource(reference, "empty reference")
	}

	var (
		src entity.VideoSource
		err error
	)
	switch {
	case len(ref) >= len(devicePrefix) && strings.EqualFold(ref[:len(devicePrefix)], devicePrefix):
		src, err = resolveDevice(reference, ref[len(devicePrefix):])
	case looksNumeric(ref):
		src, err = resolveDevice(reference, ref)
	case strings.Contains(ref, "://"):
		src, err = resolveStream(reference, ref)
	default:
		src, err = resolveFile(reference, ref)
	}
	if err != nil {
		r.logger.Debug("source rejected", zap.String("reference", reference), zap.Error(err))
		return entity.VideoSource{}, err
	}

	r.logger.Debug("source resolved", zap.String("reference", reference), zap.Stringer("source", src))
	return src, nil
}

func resolveDevice(reference, index string) (entity.VideoSource, error) {
	n, err := strconv.Atoi(strings.TrimSpace(index))
	if err != nil {
		return entity.VideoSource{}, invalidSource(reference, fmt.Sprintf("device index %q is not an integer", index))
	}
	if n < 0 {
		return entity.VideoSource{}, invalidSource(reference, fmt.Sprintf("device index %d is negative", n))
	}
	return entity.DeviceSource(n), nil
}

func resolveStream(reference, ref string) (entity.VideoSource, error) {
	scheme, rest, _ := strings.Cut(ref, "://")
	if !streamSchemes[strings.ToLower(scheme)] {
		return entity.VideoSource{}, invalidSource(reference, fmt.Sprintf("unsupported stream scheme %q", scheme))
	}
	if rest == "" {
		return entity.VideoSource{}, invalidSource(reference, "stream uri has no address")
	}
	if _, err := url.Parse(ref); err != nil {
		return entity.VideoSource{}, invalidSource(reference, "malformed uri: "+err.Error())
	}
	return entity.StreamSource(ref), nil
}

func resolveFile(reference, ref string) (entity.VideoSource, error) {
	path := filepath.Clean(ref)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return entity.VideoSource{}, invalidSource(reference, "file does not exist")
	}
	if err != nil {
		return entity.VideoSource{}, invalidSource(reference, err.Error())
	}
	if info.IsDir() {
		return entity.VideoSource{}, invalidSource(reference, "is a directory")
	}
	if !isVideoFile(path) {
		return entity.VideoSource{}, invalidSource(reference, fmt.Sprintf("unrecognized video extension %q", filepath.Ext(path)))
	}

	f, err := os.Open(path)
	if err != nil {
		return entity.VideoSource{}, invalidSource(reference, "file is not readable")
	}
	_ = f.Close()

	return entity.FileSource(path), nil
}

// FindVideoFiles lists the video files directly inside mediaDir, sorted by
// name. A missing directory yields no files.
func (r *SourceResolver) FindVideoFiles(mediaDir string) ([]string, error) {
	entries, err := os.ReadDir(mediaDir)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warn("media directory not found", zap.String("dir", mediaDir))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read media dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && isVideoFile(e.Name()) {
			files = append(files, filepath.Join(mediaDir, e.Name()))
		}
	}
	r.logger.Debug("video files found", zap.String("dir", mediaDir), zap.Int("count", len(files)))
	return files, nil
}

func isVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

func looksNumeric(s string) bool {
	if strings.HasPrefix(s, "-") || strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func invalidSource(reference, reason string) error {
	return &entity.InvalidSourceError{Reference: reference, Reason: reason}
}
