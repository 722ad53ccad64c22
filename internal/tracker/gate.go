package tracker

import "sync"

// completionGate guarantees the terminal transition for a job handle is
// consumed exactly once. Both an original poller and a resumed one can
// observe the same terminal status; only the first observation wins.
type completionGate struct {
	mu    sync.Mutex
	fired map[string]bool
}

func newCompletionGate() *completionGate {
	return &completionGate{fired: make(map[string]bool)}
}

// fire reports whether the caller is the first to consume the terminal
// transition for jobID.
func (g *completionGate) fire(jobID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fired[jobID] {
		return false
	}
	g.fired[jobID] = true
	return true
}
