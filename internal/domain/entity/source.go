package entity

import (
	"errors"
	"fmt"
)

type SourceKind int

const (
	SourceFile SourceKind = iota + 1
	SourceDevice
	SourceStream
)

func (k SourceKind) String() string {
	switch k {
	case SourceFile:
		return "file"
	case SourceDevice:
		return "device"
	case SourceStream:
		return "stream"
	default:
		return "unknown"
	}
}

// VideoSource is a resolved video reference. Exactly one of Path, Device or
// URI is meaningful, selected by Kind; build it with FileSource,
// DeviceSource or StreamSource.
type VideoSource struct {
	Kind   SourceKind
	Path   string
	Device int
	URI    string
}

func FileSource(path string) VideoSource {
	return VideoSource{Kind: SourceFile, Path: path}
}

func DeviceSource(index int) VideoSource {
	return VideoSource{Kind: SourceDevice, Device: index}
}

func StreamSource(uri string) VideoSource {
	return VideoSource{Kind: SourceStream, URI: uri}
}

// Bounded is true when the source ends on its own.
func (s VideoSource) Bounded() bool {
	return s.Kind == SourceFile
}

func (s VideoSource) Validate() error {
	switch s.Kind {
	case SourceFile:
		if s.Path == "" || s.URI != "" || s.Device != 0 {
			return errors.New("file source must carry only a path")
		}
	case SourceDevice:
		if s.Path != "" || s.URI != "" {
			return errors.New("device source must carry only an index")
		}
		if s.Device < 0 {
			return fmt.Errorf("device index %d is negative", s.Device)
		}
	case SourceStream:
		if s.URI == "" || s.Path != "" || s.Device != 0 {
			return errors.New("stream source must carry only a uri")
		}
	default:
		return fmt.Errorf("unknown source kind %d", s.Kind)
	}
	return nil
}

func (s VideoSource) String() string {
	switch s.Kind {
	case SourceFile:
		return "file:" + s.Path
	case SourceDevice:
		return fmt.Sprintf("device:%d", s.Device)
	case SourceStream:
		return "stream:" + s.URI
	default:
		return "unknown"
	}
}
