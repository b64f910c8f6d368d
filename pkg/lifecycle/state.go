// Package lifecycle owns the service's readiness state machine and the
// background build pipeline that produces and refreshes the schema card.
package lifecycle

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemalens/schemalens-engine/pkg/models"
)

// Phase is one step of the readiness state machine.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseStarting Phase = "STARTING"
	PhaseRunning  Phase = "RUNNING"
	PhaseReady    Phase = "READY"
	PhaseFailed   Phase = "FAILED"
	PhaseStopped  Phase = "STOPPED"
)

// State tracks readiness. All transitions go through its methods; reads get
// a consistent snapshot.
type State struct {
	mu          sync.RWMutex
	phase       Phase
	attempts    int
	startedAt   *time.Time
	completedAt *time.Time
	errMessage  string
	buildID     string
	tableCount  int
	enriching   bool
}

// NewState starts in IDLE.
func NewState() *State {
	return &State{phase: PhaseIdle}
}

// Phase returns the current phase.
func (s *State) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Ready reports whether requests should be served.
func (s *State) Ready() bool {
	return s.Phase() == PhaseReady
}

// BeginAttempt transitions into STARTING and stamps a fresh build id.
func (s *State) BeginAttempt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.phase = PhaseStarting
	s.attempts++
	s.startedAt = &now
	s.completedAt = nil
	s.errMessage = ""
	s.buildID = uuid.NewString()
	return s.buildID
}

// MarkRunning records that the connection is up and the build is in flight.
func (s *State) MarkRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStarting {
		s.phase = PhaseRunning
	}
}

// MarkReady publishes readiness with the table count of the installed card.
func (s *State) MarkReady(tableCount int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	s.phase = PhaseReady
	s.completedAt = &now
	s.tableCount = tableCount
	s.errMessage = ""
}

// MarkFailed records a startup failure. Enrichment failures never call this;
// an installed card keeps serving.
func (s *State) MarkFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == PhaseStopped {
		return
	}
	s.phase = PhaseFailed
	s.errMessage = err.Error()
}

// MarkStopped is terminal.
func (s *State) MarkStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = PhaseStopped
}

// SetEnriching flags the background enrichment pass.
func (s *State) SetEnriching(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enriching = v
}

// UpdateTableCount refreshes the published count after a card swap.
func (s *State) UpdateTableCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tableCount = n
}

// BuildID returns the id of the current build attempt.
func (s *State) BuildID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.buildID
}

// Snapshot renders the state for the status tool.
func (s *State) Snapshot() models.InitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.InitStatus{
		Phase:        string(s.phase),
		Attempts:     s.attempts,
		StartedAt:    s.startedAt,
		CompletedAt:  s.completedAt,
		ErrorMessage: s.errMessage,
		TableCount:   s.tableCount,
		Enriching:    s.enriching,
	}
}
