package frame

import (
	"errors"
	"time"

	"github.com/edwinsyarief/mugen/batch"
)

var (
	// ErrSubmission wraps every failure to hand a frame to the presenter.
	ErrSubmission = errors.New("frame: submission failed")
	// ErrDeviceLost is returned by presenters whose device went away.
	ErrDeviceLost = errors.New("frame: device lost")
	// ErrTargetUnavailable is returned by presenters that have no target to
	// draw into this frame, for example while minimized.
	ErrTargetUnavailable = errors.New("frame: target unavailable")
	// ErrClosed is returned by Step after Shutdown.
	ErrClosed = errors.New("frame: orchestrator closed")
	// ErrStarted is returned when the render stage is replaced after the
	// first frame.
	ErrStarted = errors.New("frame: orchestrator already started")
	// ErrDuplicateStage reports two stages sharing a name.
	ErrDuplicateStage = errors.New("frame: duplicate stage name")
	// ErrUnknownStage reports a stage name that is not running, or not
	// paused, as the call requires.
	ErrUnknownStage = errors.New("frame: unknown stage")
	// ErrRenderStage is returned by changes that would pause the render stage
	// or place a stage after it.
	ErrRenderStage = errors.New("frame: render stage must run last")
)

// Snapshot is the immutable input state of one frame. Systems read it from
// the world resources with mugen.GetResource[frame.Snapshot].
type Snapshot struct {
	// Input is whatever the input collaborator captured.
	Input any
	// Frame is filled in by the orchestrator.
	Frame uint64
	// Delta is the time since the previous frame. When the input source
	// leaves it zero the orchestrator clock is used.
	Delta time.Duration
	// Elapsed is filled in by the orchestrator.
	Elapsed time.Duration
}

// InputSource supplies one snapshot per frame. Snapshot must not block.
type InputSource interface {
	Snapshot() Snapshot
}

// InputFunc adapts a function to InputSource.
type InputFunc func() Snapshot

func (f InputFunc) Snapshot() Snapshot {
	return f()
}

// Target is the surface a frame is drawn into.
type Target struct {
	ID     uint64
	Width  int
	Height int
}

// Submission is one ordered draw: a mesh and material with its instances.
type Submission struct {
	Key       batch.Key
	Instances []batch.Instance
}

// Bytes returns the instance buffer as raw bytes.
func (s Submission) Bytes() []byte {
	return batch.Bytes(s.Instances)
}

// Presenter owns the device. Target is called once per frame before Submit;
// submissions are only valid for the duration of Submit.
type Presenter interface {
	Target() (Target, error)
	Submit(target Target, subs []Submission) error
}

// AssetCatalog reports whether assets referenced by sprites can be drawn.
type AssetCatalog interface {
	ValidMesh(id batch.MeshID) bool
	ValidMaterial(id batch.MaterialID) bool
}
