package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newExtractor(opener *fakeOpener, store *fakeStore) *FrameExtractor {
	return NewFrameExtractor(opener, store, zap.NewNop())
}

func TestExtract_FileEveryNthFrame(t *testing.T) {
	opener := &fakeOpener{reader: &fakeReader{total: 100}}
	store := &fakeStore{}
	out := t.TempDir()

	res, err := newExtractor(opener, store).Extract(context.Background(),
		entity.FileSource("clip.mp4"), entity.ExtractionPolicy{Interval: 30}, out)
	require.NoError(t, err)

	assert.Equal(t, 4, res.FrameCount)
	assert.Equal(t, 100, res.RawFrames)
	assert.Equal(t, entity.StopEndOfStream, res.StopReason)
	assert.False(t, res.Interrupted)
	assert.Equal(t, []int{0, 1, 2, 3}, store.saved)

	var raw []int
	for i, f := range res.Frames {
		assert.Equal(t, i, f.SequenceIndex)
		raw = append(raw, f.RawIndex)
	}
	assert.Equal(t, []int{0, 30, 60, 90}, raw)
	assert.True(t, opener.reader.closed)
}

func TestExtract_DeviceStopsAtMaxFrames(t *testing.T) {
	opener := &fakeOpener{reader: &fakeReader{total: -1}}
	store := &fakeStore{}

	res, err := newExtractor(opener, store).Extract(context.Background(),
		entity.DeviceSource(0), entity.ExtractionPolicy{Interval: 1, MaxFrames: 5}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 5, res.FrameCount)
	assert.Equal(t, entity.StopMaxFrames, res.StopReason)
	assert.Equal(t, 5, res.RawFrames)
}

func TestExtract_MaxFramesAdvisoryForFiles(t *testing.T) {
	policy := entity.ExtractionPolicy{Interval: 1, MaxFrames: 2}

	res, err := newExtractor(&fakeOpener{reader: &fakeReader{total: 10}}, &fakeStore{}).
		Extract(context.Background(), entity.FileSource("clip.mp4"), policy, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 10, res.FrameCount)
	assert.Equal(t, entity.StopEndOfStream, res.StopReason)

	policy.CapFileSources = true
	res, err = newExtractor(&fakeOpener{reader: &fakeReader{total: 10}}, &fakeStore{}).
		Extract(context.Background(), entity.FileSource("clip.mp4"), policy, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 2, res.FrameCount)
	assert.Equal(t, entity.StopMaxFrames, res.StopReason)
}

func TestExtract_InterruptKeepsSavedFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &fakeStore{onSave: func(index int) {
		if index == 2 {
			cancel()
		}
	}}

	res, err := newExtractor(&fakeOpener{reader: &fakeReader{total: -1}}, store).
		Extract(ctx, entity.StreamSource("rtsp://cam/1"), entity.ExtractionPolicy{Interval: 1}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, res.FrameCount)
	assert.True(t, res.Interrupted)
	assert.Equal(t, entity.StopInterrupted, res.StopReason)
	assert.Len(t, res.Frames, 3)
}

func TestExtract_LiveSourceEnded(t *testing.T) {
	res, err := newExtractor(&fakeOpener{reader: &fakeReader{total: 7}}, &fakeStore{}).
		Extract(context.Background(), entity.StreamSource("rtsp://cam/1"), entity.ExtractionPolicy{Interval: 3}, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 3, res.FrameCount)
	assert.Equal(t, entity.StopSourceEnded, res.StopReason)
}

func TestExtract_OpenFailureIsSourceUnavailable(t *testing.T) {
	opener := &fakeOpener{err: errors.New("device busy")}

	res, err := newExtractor(opener, &fakeStore{}).Extract(context.Background(),
		entity.DeviceSource(1), entity.ExtractionPolicy{Interval: 1}, t.TempDir())
	assert.Nil(t, res)

	var unavailable *entity.SourceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, entity.DeviceSource(1), unavailable.Source)
	assert.True(t, entity.IsRetryable(err))
}

func TestExtract_ReadErrorReturnsPartialResult(t *testing.T) {
	readErr := errors.New("corrupt packet")
	opener := &fakeOpener{reader: &fakeReader{total: 5, failErr: readErr}}

	res, err := newExtractor(opener, &fakeStore{}).Extract(context.Background(),
		entity.FileSource("clip.mp4"), entity.ExtractionPolicy{Interval: 2}, t.TempDir())
	require.ErrorIs(t, err, readErr)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.FrameCount)

	stage, _ := entity.StageOf(err)
	assert.Equal(t, entity.StageExtract, stage)
}

func TestExtract_SaveErrorStops(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}

	res, err := newExtractor(&fakeOpener{reader: &fakeReader{total: 5}}, store).Extract(context.Background(),
		entity.FileSource("clip.mp4"), entity.ExtractionPolicy{Interval: 1}, t.TempDir())
	require.Error(t, err)
	assert.Equal(t, 0, res.FrameCount)
}

func TestExtract_InvalidPolicyNeverOpens(t *testing.T) {
	opener := &fakeOpener{reader: &fakeReader{total: 5}}

	_, err := newExtractor(opener, &fakeStore{}).Extract(context.Background(),
		entity.FileSource("clip.mp4"), entity.ExtractionPolicy{Interval: 0}, t.TempDir())
	require.Error(t, err)
	assert.Empty(t, opener.opened)
}
