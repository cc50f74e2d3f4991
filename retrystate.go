package fyreflow

import "log/slog"

// queuedStep is one entry in a retryState's work queue.
type queuedStep struct {
	StepID        string
	QueuedByStep  string // originating step id, empty for entry/fallback
	QueuedReason  string
}

// retryState owns the work queue and attempt accounting for one run
// (spec §4.6 "Retry accounting"). Not safe for concurrent use from
// multiple goroutines without external synchronization — the pool
// scheduler touches it only from its single collection loop, never
// from a worker.
type retryState struct {
	maxLoops       int
	attemptsByStep map[string]uint
	inFlight       map[string]bool
	queuedSet      map[string]bool
	queue          []queuedStep
	logger         *slog.Logger
}

func newRetryState(maxLoops int, logger *slog.Logger) *retryState {
	if logger == nil {
		logger = nopLogger()
	}
	return &retryState{
		maxLoops:       maxLoops,
		attemptsByStep: make(map[string]uint),
		inFlight:       make(map[string]bool),
		queuedSet:      make(map[string]bool),
		logger:         logger,
	}
}

// Enqueue appends stepID to the queue unless it is already queued or
// has exhausted maxLoops+1 attempts. Rejection logs and is otherwise
// silent. It does not check that stepID names a step of the flow; the
// schedulers drop an unknown id when they dequeue it.
func (s *retryState) Enqueue(stepID, byStep, reason string) {
	if s.queuedSet[stepID] {
		s.logger.Debug("enqueue rejected: already queued", "step", stepID)
		return
	}
	if s.attemptsByStep[stepID] >= uint(s.maxLoops)+1 {
		s.logger.Debug("enqueue rejected: attempts exhausted", "step", stepID, "attempts", s.attemptsByStep[stepID])
		return
	}
	s.queuedSet[stepID] = true
	s.queue = append(s.queue, queuedStep{StepID: stepID, QueuedByStep: byStep, QueuedReason: reason})
}

// Dequeue removes and returns the next queued step, if any.
func (s *retryState) Dequeue() (queuedStep, bool) {
	if len(s.queue) == 0 {
		return queuedStep{}, false
	}
	q := s.queue[0]
	s.queue = s.queue[1:]
	delete(s.queuedSet, q.StepID)
	return q, true
}

// BeginAttempt records stepID as in-flight and increments its attempt
// counter; call once per dequeued step right before executing it.
func (s *retryState) BeginAttempt(stepID string) uint {
	s.inFlight[stepID] = true
	s.attemptsByStep[stepID]++
	return s.attemptsByStep[stepID]
}

// EndAttempt clears stepID's in-flight marker.
func (s *retryState) EndAttempt(stepID string) {
	delete(s.inFlight, stepID)
}

// IsInFlight reports whether stepID currently has a worker executing it.
func (s *retryState) IsInFlight(stepID string) bool { return s.inFlight[stepID] }

// Attempted reports whether stepID has begun at least one attempt.
func (s *retryState) Attempted(stepID string) bool { return s.attemptsByStep[stepID] > 0 }

// TotalExecutions returns the sum of attempts across all steps, used
// against maxStepExecutions.
func (s *retryState) TotalExecutions() int {
	total := 0
	for _, n := range s.attemptsByStep {
		total += int(n)
	}
	return total
}

// Empty reports whether nothing is queued.
func (s *retryState) Empty() bool { return len(s.queue) == 0 }
