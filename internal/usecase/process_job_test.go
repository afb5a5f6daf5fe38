package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/infra/archive"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type jobHarness struct {
	uc        *ProcessJobUseCase
	repo      *fakeRepo
	storage   *fakeStorage
	opener    *fakeOpener
	store     *fakeStore
	publisher *fakePublisher
	dlq       *fakeDLQ
	notifier  *fakeNotifier
	root      string
}

func newJobHarness(t *testing.T) *jobHarness {
	t.Helper()
	h := &jobHarness{
		repo:      newFakeRepo(),
		storage:   newFakeStorage(),
		opener:    &fakeOpener{reader: &fakeReader{total: 10}},
		store:     &fakeStore{},
		publisher: &fakePublisher{},
		dlq:       &fakeDLQ{},
		notifier:  &fakeNotifier{},
		root:      t.TempDir(),
	}
	log := zap.NewNop()
	h.uc = NewProcessJobUseCase(
		h.repo, h.storage,
		NewSourceResolver(log),
		NewFrameExtractor(h.opener, h.store, log),
		NewLabelReconciler(log),
		archive.NewZipCreator(),
		h.publisher, h.dlq, h.notifier,
		log,
		ProcessJobConfig{
			TempDir:      filepath.Join(h.root, "tmp"),
			ImagesDir:    filepath.Join(h.root, "images"),
			TemplatePath: filepath.Join(h.root, "model", "template.cfg"),
			NamesFile:    "obj.names",
			ConfigFile:   "custom.cfg",
			Interval:     1,
			ValidateIDs:  true,
			MaxRetries:   3,
		},
	)
	return h
}

func (h *jobHarness) lastStatus(t *testing.T) entity.DatasetStatusMessage {
	t.Helper()
	require.NotEmpty(t, h.publisher.statuses)
	return h.publisher.statuses[len(h.publisher.statuses)-1]
}

func encode(t *testing.T, msg entity.DatasetJobMessage) []byte {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestExecute_MalformedMessageGoesToDLQ(t *testing.T) {
	h := newJobHarness(t)

	err := h.uc.Execute(context.Background(), []byte("{not json"))
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Contains(t, h.dlq.entries[0].reason, "unmarshal_error")
	assert.Empty(t, h.dlq.entries[0].stage)
}

func TestExecute_UnknownKindGoesToDLQ(t *testing.T) {
	h := newJobHarness(t)

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{JobID: uuid.New(), Kind: "train"}))
	require.NoError(t, err)
	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, "unknown_kind: train", h.dlq.entries[0].reason)
}

func TestExecute_ExtractFromDevice(t *testing.T) {
	h := newJobHarness(t)
	h.opener.reader = &fakeReader{total: -1}
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindExtract, Source: "device:0", MaxFrames: 4,
	}))
	require.NoError(t, err)

	run, err := h.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, entity.RunStatusCompleted, run.Status)
	assert.Equal(t, 4, run.FrameCount)
	assert.Equal(t, entity.DeviceSource(0), h.opener.opened[0])

	status := h.lastStatus(t)
	assert.Equal(t, entity.RunStatusCompleted, status.Status)
	assert.Equal(t, 4, status.FrameCount)
	assert.Equal(t, id.String(), status.Directory)
	assert.Empty(t, h.dlq.entries)
}

func TestExecute_ExtractJobsGetTheirOwnDirectory(t *testing.T) {
	h := newJobHarness(t)
	first, second := uuid.New(), uuid.New()

	for _, id := range []uuid.UUID{first, second} {
		h.opener.reader = &fakeReader{total: 3}
		require.NoError(t, h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
			JobID: id, Kind: entity.RunKindExtract, Source: "device:0",
		})))
	}

	images := filepath.Join(h.root, "images")
	require.Len(t, h.store.dirs, 6)
	assert.Equal(t, filepath.Join(images, first.String()), h.store.dirs[0])
	assert.Equal(t, filepath.Join(images, second.String()), h.store.dirs[5])

	run, _ := h.repo.FindByID(context.Background(), second)
	assert.Equal(t, second.String(), run.Directory)
}

func TestExecute_ExtractIntoRequestedSubdirectory(t *testing.T) {
	h := newJobHarness(t)
	h.opener.reader = &fakeReader{total: 2}

	require.NoError(t, h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: uuid.New(), Kind: entity.RunKindExtract, Source: "device:0", Directory: "batch1",
	})))

	require.NotEmpty(t, h.store.dirs)
	assert.Equal(t, filepath.Join(h.root, "images", "batch1"), h.store.dirs[0])
	assert.Equal(t, "batch1", h.lastStatus(t).Directory)
}

func TestExecute_DirectoryOutsideImagesIsRejected(t *testing.T) {
	tests := []struct {
		name  string
		kind  entity.RunKind
		dir   string
		stage string
	}{
		{"extract absolute", entity.RunKindExtract, "/etc", "extract"},
		{"extract parent", entity.RunKindExtract, "../elsewhere", "extract"},
		{"package escaping", entity.RunKindPackage, "batch1/../../..", "package"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newJobHarness(t)
			id := uuid.New()

			err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
				JobID: id, Kind: tt.kind, Source: "device:0", Directory: tt.dir, Classes: []string{"dog"},
			}))
			require.NoError(t, err)

			require.Len(t, h.dlq.entries, 1)
			assert.Equal(t, tt.stage, h.dlq.entries[0].stage)
			assert.Empty(t, h.opener.opened)
			assert.Empty(t, h.storage.uploaded)

			run, _ := h.repo.FindByID(context.Background(), id)
			assert.Equal(t, entity.RunStatusFailed, run.Status)
			assert.Equal(t, tt.stage, run.FailedStage)
		})
	}
}

func TestExecute_ExtractDownloadsVideoKey(t *testing.T) {
	h := newJobHarness(t)
	h.storage.videos["uploads/clip.mp4"] = []byte("video")
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindExtract, VideoKey: "uploads/clip.mp4", Interval: 5,
	}))
	require.NoError(t, err)

	require.Len(t, h.opener.opened, 1)
	assert.Equal(t, entity.SourceFile, h.opener.opened[0].Kind)
	assert.Equal(t, ".mp4", filepath.Ext(h.opener.opened[0].Path))

	run, _ := h.repo.FindByID(context.Background(), id)
	assert.Equal(t, 2, run.FrameCount)
	assert.Equal(t, "uploads/clip.mp4", run.Reference)
}

func TestExecute_InvalidSourceIsPermanent(t *testing.T) {
	h := newJobHarness(t)
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindExtract, Source: "ftp://nowhere/clip.mp4", NotifyEmail: "ops@fiapx.local",
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.entries, 1)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "resolve", h.notifier.sent[0].stage)
	assert.Equal(t, "ops@fiapx.local", h.notifier.sent[0].to)

	run, _ := h.repo.FindByID(context.Background(), id)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
	assert.Equal(t, "resolve", run.FailedStage)
	assert.Empty(t, h.opener.opened)
}

func TestExecute_UnavailableStreamIsRetried(t *testing.T) {
	h := newJobHarness(t)
	h.opener.err = errors.New("connection refused")
	id := uuid.New()
	msg := encode(t, entity.DatasetJobMessage{JobID: id, Kind: entity.RunKindExtract, Source: "rtsp://cam/1"})

	err := h.uc.Execute(context.Background(), msg)
	require.Error(t, err)
	assert.True(t, entity.IsRetryable(err))
	assert.Empty(t, h.dlq.entries)

	run, _ := h.repo.FindByID(context.Background(), id)
	assert.Equal(t, 1, run.Attempt)
	assert.Equal(t, "extract", run.FailedStage)

	require.Error(t, h.uc.Execute(context.Background(), msg))
	require.NoError(t, h.uc.Execute(context.Background(), msg))
	require.Len(t, h.dlq.entries, 1)

	run, _ = h.repo.FindByID(context.Background(), id)
	assert.Equal(t, 3, run.Attempt)
	assert.Equal(t, entity.RunStatusFailed, run.Status)
}

func TestExecute_PackageUploadsArtifacts(t *testing.T) {
	h := newJobHarness(t)
	images := filepath.Join(h.root, "images")
	writeFile(images, "a.jpg", "img-a")
	writeFile(images, "a.txt", "1 0.5 0.5 0.2 0.2\n")
	writeFile(images, "b.jpg", "img-b")
	writeFile(h.root, "model/template.cfg", "classes=_CLASS_NUMBER_\n")
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindPackage, Classes: []string{"dog", "cat"},
	}))
	require.NoError(t, err)

	prefix := id.String() + "/"
	assert.Contains(t, h.storage.uploaded, prefix+"obj.zip")
	assert.Equal(t, "dog\ncat\n", string(h.storage.uploaded[prefix+"obj.names"]))
	assert.Equal(t, "classes=2\n", string(h.storage.uploaded[prefix+"custom.cfg"]))

	status := h.lastStatus(t)
	assert.Equal(t, entity.RunStatusCompleted, status.Status)
	assert.Equal(t, 1, status.PairCount)
	assert.Equal(t, prefix+"obj.zip", status.ArchiveKey)
	assert.NoDirExists(t, filepath.Join(h.root, "tmp", id.String()))
}

func TestExecute_PackageWithoutPairsFails(t *testing.T) {
	h := newJobHarness(t)
	writeFile(filepath.Join(h.root, "images"), "a.jpg", "img-a")
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindPackage, Classes: []string{"dog"},
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.entries, 1)
	status := h.lastStatus(t)
	assert.Equal(t, entity.RunStatusFailed, status.Status)
	assert.Equal(t, "package", status.FailedStage)
	assert.Empty(t, h.storage.uploaded)
}

func TestExecute_PackageRejectsDuplicateExportedClasses(t *testing.T) {
	h := newJobHarness(t)
	images := filepath.Join(h.root, "images")
	writeFile(images, "classes.txt", "dog\ndog\n")
	writeFile(images, "a.jpg", "img-a")
	writeFile(images, "a.txt", "7 0.5 0.5 0.2 0.2\n")
	id := uuid.New()

	err := h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindPackage, NotifyEmail: "ops@fiapx.local",
	}))
	require.NoError(t, err)

	require.Len(t, h.dlq.entries, 1)
	assert.Equal(t, "classes", h.dlq.entries[0].stage)
	assert.Contains(t, h.dlq.entries[0].reason, `duplicate class "dog"`)
	assert.Empty(t, h.storage.uploaded)

	status := h.lastStatus(t)
	assert.Equal(t, entity.RunStatusFailed, status.Status)
	assert.Equal(t, "classes", status.FailedStage)
	require.Len(t, h.notifier.sent, 1)
	assert.Equal(t, "classes", h.notifier.sent[0].stage)
}

func TestExecute_PackageUsesExportedClasses(t *testing.T) {
	h := newJobHarness(t)
	images := filepath.Join(h.root, "images", "batch1")
	writeFile(images, "classes.txt", "dog\ncat\n")
	writeFile(images, "a.jpg", "img-a")
	writeFile(images, "a.txt", "1 0.5 0.5 0.2 0.2\n")
	id := uuid.New()

	require.NoError(t, h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindPackage, Directory: "batch1",
	})))

	assert.Equal(t, "dog\ncat\n", string(h.storage.uploaded[id.String()+"/obj.names"]))
	status := h.lastStatus(t)
	assert.Equal(t, entity.RunStatusCompleted, status.Status)
	assert.Equal(t, "batch1", status.Directory)
}

func TestExecute_PackageWithoutClassListSkipsConfig(t *testing.T) {
	h := newJobHarness(t)
	images := filepath.Join(h.root, "images")
	writeFile(images, "a.jpg", "img-a")
	writeFile(images, "a.txt", "3 0.5 0.5 0.2 0.2\n")
	id := uuid.New()

	require.NoError(t, h.uc.Execute(context.Background(), encode(t, entity.DatasetJobMessage{
		JobID: id, Kind: entity.RunKindPackage,
	})))

	assert.Contains(t, h.storage.uploaded, id.String()+"/obj.zip")
	assert.NotContains(t, h.storage.uploaded, id.String()+"/obj.names")
	assert.Equal(t, entity.RunStatusCompleted, h.lastStatus(t).Status)
}
