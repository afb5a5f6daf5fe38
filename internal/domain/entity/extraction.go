package entity

import "fmt"

// ExtractionPolicy controls which decoded frames are written.
//
// MaxFrames == 0 means no cap. The cap always bounds device and stream
// sources; for file sources it only applies when CapFileSources is set,
// otherwise files run to end-of-stream.
type ExtractionPolicy struct {
	Interval       int
	MaxFrames      int
	CapFileSources bool
}

func (p ExtractionPolicy) Validate() error {
	if p.Interval < 1 {
		return fmt.Errorf("interval must be >= 1, got %d", p.Interval)
	}
	if p.MaxFrames < 0 {
		return fmt.Errorf("max frames must be positive when set, got %d", p.MaxFrames)
	}
	return nil
}

// CapFor returns the saved-frame cap that applies to src, 0 for none.
func (p ExtractionPolicy) CapFor(src VideoSource) int {
	if src.Bounded() && !p.CapFileSources {
		return 0
	}
	return p.MaxFrames
}

type SavedFrame struct {
	SequenceIndex int
	RawIndex      int
	Path          string
}

type StopReason string

const (
	StopEndOfStream StopReason = "end_of_stream"
	StopSourceEnded StopReason = "source_ended"
	StopMaxFrames   StopReason = "max_frames"
	StopInterrupted StopReason = "interrupted"
)

type ExtractionResult struct {
	Source      VideoSource
	OutputDir   string
	FrameCount  int
	RawFrames   int
	Frames      []SavedFrame
	StopReason  StopReason
	Interrupted bool
}
