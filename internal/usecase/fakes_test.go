package usecase

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"github.com/google/uuid"
)

// fakeReader yields frames until total is reached (forever when total < 0),
// then failErr or io.EOF.
type fakeReader struct {
	total   int
	failErr error
	read    int
	closed  bool
}

func (r *fakeReader) Next(ctx context.Context) (image.Image, error) {
	if r.total >= 0 && r.read >= r.total {
		if r.failErr != nil {
			return nil, r.failErr
		}
		return nil, io.EOF
	}
	r.read++
	return image.NewNRGBA(image.Rect(0, 0, 2, 2)), nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeOpener struct {
	reader *fakeReader
	err    error
	opened []entity.VideoSource
}

func (o *fakeOpener) Open(_ context.Context, src entity.VideoSource) (port.FrameReader, error) {
	o.opened = append(o.opened, src)
	if o.err != nil {
		return nil, o.err
	}
	return o.reader, nil
}

// fakeStore records saves; onSave runs after each one.
type fakeStore struct {
	saved  []int
	dirs   []string
	err    error
	onSave func(index int)
}

func (s *fakeStore) Save(dir string, index int, _ image.Image) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, index)
	s.dirs = append(s.dirs, dir)
	if s.onSave != nil {
		s.onSave(index)
	}
	return filepath.Join(dir, fmt.Sprintf("img_%05d.jpg", index)), nil
}

type fakeRepo struct {
	mu   sync.Mutex
	runs map[uuid.UUID]entity.Run
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{runs: make(map[uuid.UUID]entity.Run)}
}

func (r *fakeRepo) Create(_ context.Context, run *entity.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *fakeRepo) Update(_ context.Context, run *entity.Run) error {
	return r.Create(context.Background(), run)
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, errors.New("no rows")
	}
	return &run, nil
}

type fakeStorage struct {
	videos   map[string][]byte
	uploaded map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{videos: map[string][]byte{}, uploaded: map[string][]byte{}}
}

func (s *fakeStorage) DownloadVideo(_ context.Context, key, dest string) error {
	data, ok := s.videos[key]
	if !ok {
		return fmt.Errorf("object %s not found", key)
	}
	return os.WriteFile(dest, data, 0o644)
}

func (s *fakeStorage) UploadArchive(_ context.Context, key string, r io.Reader, _ int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.uploaded[key] = data
	return nil
}

type fakePublisher struct {
	statuses []entity.DatasetStatusMessage
}

func (p *fakePublisher) PublishStatus(_ context.Context, msg entity.DatasetStatusMessage) error {
	p.statuses = append(p.statuses, msg)
	return nil
}

type dlqEntry struct {
	body   []byte
	stage  string
	reason string
}

type fakeDLQ struct {
	entries []dlqEntry
}

func (d *fakeDLQ) PublishToDLQ(_ context.Context, body []byte, stage, reason string) error {
	d.entries = append(d.entries, dlqEntry{body: body, stage: stage, reason: reason})
	return nil
}

type notification struct {
	to, jobID, reference, stage, errorMsg string
}

type fakeNotifier struct {
	sent []notification
}

func (n *fakeNotifier) NotifyFailure(_ context.Context, to, jobID, reference, stage, errorMsg string) error {
	n.sent = append(n.sent, notification{to, jobID, reference, stage, errorMsg})
	return nil
}

func writeFile(dir, name, content string) string {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		panic(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		panic(err)
	}
	return path
}
