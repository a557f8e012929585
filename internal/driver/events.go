package driver

import "time"

// Stage describes a high-level pipeline phase for one input file.
type Stage string

const (
	// StageRead is the file loading stage.
	StageRead Stage = "read"
	// StageParse is the parsing stage.
	StageParse Stage = "parse"
	// StageVerify is the IR validation stage.
	StageVerify Stage = "verify"
	// StageMerge is the call-merging stage.
	StageMerge Stage = "merge"
	// StagePrint is the output printing stage.
	StagePrint Stage = "print"
)

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the file is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the file is currently being processed.
	StatusWorking Status = "working"
	// StatusCached indicates the file was served from the disk cache.
	StatusCached Status = "cached"
	// StatusDone indicates the file is done.
	StatusDone Status = "done"
	// StatusError indicates processing encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a file (or for the overall run when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Implementations must be safe for
// concurrent use: OptimizeDir emits events from worker goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// ChannelSink forwards events into a channel.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(evt Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- evt
}

func emit(sink ProgressSink, evt Event) {
	if sink == nil {
		return
	}
	sink.OnEvent(evt)
}
