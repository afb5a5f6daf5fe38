package port

import (
	"context"
	"image"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
)

// FrameReader is an open decoding handle. Next returns io.EOF once the
// source has no more frames.
type FrameReader interface {
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// FrameOpener opens a decoding handle for any VideoSource variant.
type FrameOpener interface {
	Open(ctx context.Context, src entity.VideoSource) (FrameReader, error)
}

// FrameStore writes one saved frame. The file appears at its final path
// complete or not at all.
type FrameStore interface {
	Save(dir string, index int, img image.Image) (string, error)
}
