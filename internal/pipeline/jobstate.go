package pipeline

// Stage names a pipeline step reported in JobState.
type Stage string

const (
	StageDiscover   Stage = "discover"
	StageExtract    Stage = "extract_audio"
	StageTranscribe Stage = "transcribe"
	StageFrames     Stage = "frames"
	StageIndex      Stage = "index"
	StageCompleted  Stage = "completed"
	StageFailed     Stage = "failed"
)

// JobState is a snapshot of job progress.
type JobState struct {
	RunID    string
	Stage    Stage
	MediaID  string
	Progress float64
	Message  string
	Err      error
}

// Observer receives job state updates. It is called synchronously from the
// runner goroutine.
type Observer func(JobState)
