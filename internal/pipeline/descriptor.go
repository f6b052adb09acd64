package pipeline

import (
	"io"
	"time"
)

// ByteRange is an inclusive byte range for a ranged GET.
type ByteRange struct {
	Start int64
	End   int64
}

// Outcome is what a single attempt produced.
type Outcome struct {
	StatusCode      int
	Response        io.ReadCloser // caller-owned; only set for GET/Healthcheck success
	UserMetadataHex string        // HEAD / PutEmpty round-trip
	StreamingStarted bool
	Duration        time.Duration
}
