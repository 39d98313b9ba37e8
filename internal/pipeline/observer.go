package pipeline

// Observer receives telemetry from quality searches. Implementations must be
// safe for concurrent use when one Resizer serves several searches at once.
type Observer interface {
	// EncodeAttempt is called after every successful encode call.
	EncodeAttempt(quality float64, size int64, fits bool)
	// SearchFinished is called once per search with the winning candidate
	// (zero on failure), the number of encode calls made and the error.
	SearchFinished(best Candidate, attempts int, err error)
}

// NopObserver discards all events.
type NopObserver struct{}

func (NopObserver) EncodeAttempt(float64, int64, bool)   {}
func (NopObserver) SearchFinished(Candidate, int, error) {}
