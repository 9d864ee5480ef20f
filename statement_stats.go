package presto

// StatementStats is the progress summary attached to every statement response.
type StatementStats struct {
	// State is the query state, e.g. "QUEUED", "RUNNING", "FINISHED" or "FAILED"
	State                   string `json:"state"`
	WaitingForPrerequisites bool   `json:"waitingForPrerequisites,omitempty"`
	Queued                  bool   `json:"queued"`
	Scheduled               bool   `json:"scheduled"`

	Nodes           int `json:"nodes"`
	TotalSplits     int `json:"totalSplits"`
	QueuedSplits    int `json:"queuedSplits"`
	RunningSplits   int `json:"runningSplits"`
	CompletedSplits int `json:"completedSplits"`

	CpuTimeMillis     int64 `json:"cpuTimeMillis"`
	WallTimeMillis    int64 `json:"wallTimeMillis"`
	QueuedTimeMillis  int64 `json:"queuedTimeMillis"`
	ElapsedTimeMillis int64 `json:"elapsedTimeMillis"`

	ProcessedRows   int64 `json:"processedRows"`
	ProcessedBytes  int64 `json:"processedBytes"`
	PeakMemoryBytes int64 `json:"peakMemoryBytes"`
	SpilledBytes    int64 `json:"spilledBytes"`

	// ProgressPercentage is absent until the coordinator can estimate it.
	ProgressPercentage *float64 `json:"progressPercentage,omitempty"`
}

// Progress returns the completed share of splits in [0, 1]. It prefers the
// coordinator's own estimate when present.
func (s StatementStats) Progress() float64 {
	if s.ProgressPercentage != nil {
		return *s.ProgressPercentage / 100
	}
	if s.TotalSplits == 0 {
		return 0
	}
	return float64(s.CompletedSplits) / float64(s.TotalSplits)
}
