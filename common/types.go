package common

// DefaultWait is the pause assumed for a step whose wait call carries no duration.
const DefaultWait = 1.0

// TimelineStep is one animation action plus its allotted on-screen pause.
type TimelineStep struct {
	Index      int     `json:"index"`
	Action     string  `json:"action"`               // trigger-call arguments, "wait" for a standalone pause
	Annotation string  `json:"annotation,omitempty"` // comment line directly above the call
	Wait       float64 `json:"wait"`
	Offset     int     `json:"offset"` // byte offset inside the scene body
}

// Standalone reports whether the step came from a pause call with no trigger.
func (s TimelineStep) Standalone() bool {
	return s.Action == ActionWait
}

// ActionWait marks a step built from a standalone pause call.
const ActionWait = "wait"

// SegmentSource records where a segment's narration text came from.
type SegmentSource string

const (
	SourceAnnotation SegmentSource = "annotation"
	SourceInferred   SegmentSource = "inferred"
	SourceGenerated  SegmentSource = "generated"
	SourceFiller     SegmentSource = "filler"
)

// NarrationSegment is the spoken content planned for one timeline step.
type NarrationSegment struct {
	StepIndex int           `json:"step_index"`
	Text      string        `json:"text"`
	Target    float64       `json:"target"`
	Source    SegmentSource `json:"source"`
}

// AudioClip is one synthesized segment after time-fitting.
type AudioClip struct {
	StepIndex   int     `json:"step_index"`
	Path        string  `json:"path"`
	Duration    float64 `json:"duration"`
	Target      float64 `json:"target"`
	SpeedFactor float64 `json:"speed_factor"`
}

// NarrationTrack is the ordered concatenation of every clip that synthesized.
type NarrationTrack struct {
	Path     string      `json:"path"`
	Clips    []AudioClip `json:"clips"`
	Duration float64     `json:"duration"`
}

// Fidelity marks which render stage produced a video.
type Fidelity string

const (
	FidelityPrimary   Fidelity = "primary"
	FidelitySlideshow Fidelity = "slideshow"
	FidelityMinimal   Fidelity = "minimal"
)

// RenderAttempt is the input of one render state machine run.
type RenderAttempt struct {
	ScriptPath string
	SceneName  string
	Quality    string
	RunID      string
}

// VideoArtifact is a silent video plus the stage that produced it.
type VideoArtifact struct {
	Path     string   `json:"path"`
	Fidelity Fidelity `json:"fidelity"`
}

// Deliverable is the final muxed (or silent) video handed to the caller.
type Deliverable struct {
	Path     string   `json:"path"`
	Fidelity Fidelity `json:"fidelity"`
	Narrated bool     `json:"narrated"`
	URL      string   `json:"url,omitempty"`
}
