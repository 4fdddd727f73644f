package usecase

import "time"

// RetrievalObserver receives retrieval measurements. The metrics package
// provides the Prometheus implementation.
type RetrievalObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
	ObserveTurn(hits int, duration time.Duration, err error)
	RerankSkipped()
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error) {}
func (noopObserver) ObserveTurn(int, time.Duration, error)     {}
func (noopObserver) RerankSkipped()                            {}

func observerOrNoop(o RetrievalObserver) RetrievalObserver {
	if o == nil {
		return noopObserver{}
	}
	return o
}
