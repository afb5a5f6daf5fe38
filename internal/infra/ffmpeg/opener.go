package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/fiapx/fiapx-dataset-service/internal/domain/port"
	"go.uber.org/zap"
)

type Options struct {
	FFmpegBin     string
	FFprobeBin    string
	DeviceInput   string
	DevicePath    string
	RTSPTransport string
}

// Opener decodes any VideoSource through an ffmpeg subprocess that writes
// raw RGBA frames to stdout.
type Opener struct {
	opts   Options
	logger *zap.Logger
}

func NewOpener(opts Options, logger *zap.Logger) *Opener {
	if opts.FFmpegBin == "" {
		opts.FFmpegBin = "ffmpeg"
	}
	if opts.FFprobeBin == "" {
		opts.FFprobeBin = "ffprobe"
	}
	return &Opener{opts: opts, logger: logger}
}

func (o *Opener) Open(ctx context.Context, src entity.VideoSource) (port.FrameReader, error) {
	inOpts, input, err := o.inputArgs(src)
	if err != nil {
		return nil, err
	}

	width, height, err := o.streamDimensions(ctx, inOpts, input)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, o.opts.FFmpegBin, decodeArgs(inOpts, input)...)
	stderr := &tailBuffer{limit: 4096}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	o.logger.Debug("ffmpeg decoder started",
		zap.Stringer("source", src),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	return &frameReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		width:  width,
		height: height,
	}, nil
}

// decodeArgs streams every decoded frame once, as RGBA, in display
// orientation. Passthrough timing keeps the raw frame index equal to the
// decoded frame count on variable frame rate input; autorotation stays on,
// and streamDimensions reports the rotated size to match.
func decodeArgs(inOpts []string, input string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-nostdin"}
	args = append(args, inOpts...)
	return append(args,
		"-i", input,
		"-an",
		"-fps_mode", "passthrough",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	)
}

// inputArgs returns the demuxer options and the input for src.
func (o *Opener) inputArgs(src entity.VideoSource) ([]string, string, error) {
	if err := src.Validate(); err != nil {
		return nil, "", err
	}
	switch src.Kind {
	case entity.SourceFile:
		return nil, src.Path, nil
	case entity.SourceDevice:
		var opts []string
		if o.opts.DeviceInput != "" {
			opts = []string{"-f", o.opts.DeviceInput}
		}
		path := o.opts.DevicePath
		if path == "" {
			return opts, strconv.Itoa(src.Device), nil
		}
		if strings.Contains(path, "%d") {
			return opts, fmt.Sprintf(path, src.Device), nil
		}
		return opts, path + strconv.Itoa(src.Device), nil
	case entity.SourceStream:
		u, err := url.Parse(src.URI)
		if err == nil && strings.EqualFold(u.Scheme, "rtsp") && o.opts.RTSPTransport != "" {
			return []string{"-rtsp_transport", o.opts.RTSPTransport}, src.URI, nil
		}
		return nil, src.URI, nil
	}
	return nil, "", fmt.Errorf("unsupported source kind %s", src.Kind)
}

func (o *Opener) streamDimensions(ctx context.Context, inOpts []string, input string) (int, int, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json",
	}
	args = append(args, inOpts...)
	args = append(args, input)

	cmd := exec.CommandContext(ctx, o.opts.FFprobeBin, args...)
	stderr := &tailBuffer{limit: 2048}
	cmd.Stderr = stderr
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseStreamInfo(output)
}

type streamInfo struct {
	Streams []struct {
		Width    int               `json:"width"`
		Height   int               `json:"height"`
		Tags     map[string]string `json:"tags"`
		SideData []struct {
			Rotation *float64 `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// parseStreamInfo returns the display size of the first video stream: the coded
// size, swapped when the stream is rotated by a quarter turn.
func parseStreamInfo(out []byte) (int, int, error) {
	var info streamInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(info.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video stream found")
	}
	st := info.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions %dx%d", st.Width, st.Height)
	}

	rotation := 0.0
	for _, sd := range st.SideData {
		if sd.Rotation != nil {
			rotation = *sd.Rotation
			break
		}
	}
	if rotation == 0 {
		if tag, ok := st.Tags["rotate"]; ok {
			if r, err := strconv.ParseFloat(tag, 64); err == nil {
				rotation = r
			}
		}
	}

	if quarterTurns := int(math.Round(rotation/90)) % 2; quarterTurns != 0 {
		return st.Height, st.Width, nil
	}
	return st.Width, st.Height, nil
}
