package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
	"sync"
)

type frameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tailBuffer
	width  int
	height int

	done     bool
	waitOnce sync.Once
	waitErr  error
}

func (r *frameReader) Next(ctx context.Context) (image.Image, error) {
	if r.done {
		return nil, io.EOF
	}

	img := image.NewNRGBA(image.Rect(0, 0, r.width, r.height))
	_, err := io.ReadFull(r.stdout, img.Pix)
	if err == nil {
		return img, nil
	}

	r.done = true
	if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read frame: %w", err)
	}

	// A killed decoder after cancellation is a normal end, not a failure.
	if werr := r.wait(); werr != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", werr, strings.TrimSpace(r.stderr.String()))
	}
	return nil, io.EOF
}

func (r *frameReader) Close() error {
	if r.cmd.ProcessState == nil && r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.wait()
	return nil
}

func (r *frameReader) wait() error {
	r.waitOnce.Do(func() {
		r.waitErr = r.cmd.Wait()
	})
	return r.waitErr
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
