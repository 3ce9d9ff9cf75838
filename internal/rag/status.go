package rag

// IsTerminal reports whether s is a final state. No transition may leave
// a terminal state.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// pipelineOrder is the forward path of the job state machine.
var pipelineOrder = map[JobStatus]JobStatus{
	JobStatusPending:    JobStatusCrawling,
	JobStatusCrawling:   JobStatusProcessing,
	JobStatusProcessing: JobStatusEmbedding,
	JobStatusEmbedding:  JobStatusIndexing,
	JobStatusIndexing:   JobStatusCompleted,
}

// CanTransition reports whether the state machine permits moving a job
// from one status to the next. Any non-terminal state may fail; forward
// movement follows the pipeline order.
func CanTransition(from, to JobStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStatusFailed {
		return true
	}
	return pipelineOrder[from] == to
}
