package calls

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mossy-p/reception-signaling/internal/models"
	"github.com/mossy-p/reception-signaling/internal/registry"
	apperrors "github.com/mossy-p/reception-signaling/pkg/errors"
	"github.com/mossy-p/reception-signaling/pkg/logger"
	"github.com/mossy-p/reception-signaling/pkg/metrics"
)

// Directory resolves connection ids to their registered role and identity.
type Directory interface {
	Lookup(id string) (registry.Connection, error)
}

// Journal receives every committed transition. It is called after the queue
// has released its lock, so implementations may block on I/O.
type Journal interface {
	Record(ctx context.Context, call Call) error
}

// Abandonment describes a call rejected because a connection went away.
// Peer is the connection still attached to the call, empty if none.
type Abandonment struct {
	Call Call
	Peer string
}

// Queue owns the canonical state of every call.
type Queue struct {
	mu        sync.Mutex
	calls     map[string]*Call
	waiting   []string
	byVisitor map[string]string
	byStaff   map[string]string

	// pruned remembers the final status of calls dropped by Prune.
	pruned map[string]Status

	dir     Directory
	journal Journal
	now     func() time.Time
	newID   func() string
	log     *zap.Logger
}

// Option customises the Queue.
type Option func(*Queue)

// WithJournal attaches a journal notified after each transition.
func WithJournal(j Journal) Option {
	return func(q *Queue) {
		q.journal = j
	}
}

// WithClock overrides the clock used for call timestamps.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		if now != nil {
			q.now = now
		}
	}
}

// WithIDGenerator overrides call id generation.
func WithIDGenerator(gen func() string) Option {
	return func(q *Queue) {
		if gen != nil {
			q.newID = gen
		}
	}
}

// NewQueue constructs an empty queue resolving connections through dir.
func NewQueue(dir Directory, opts ...Option) *Queue {
	q := &Queue{
		calls:     make(map[string]*Call),
		byVisitor: make(map[string]string),
		byStaff:   make(map[string]string),
		pruned:    make(map[string]Status),
		dir:       dir,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       logger.WithModule("calls"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// CreateCall queues a new waiting call for a registered visitor. A visitor may
// hold only one waiting or in-progress call at a time.
func (q *Queue) CreateCall(ctx context.Context, visitorID, purpose, description string) (Call, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return Call{}, apperrors.ErrInvalidRequest.WithMessage("purpose is required")
	}

	visitor, err := q.dir.Lookup(visitorID)
	if err != nil {
		return Call{}, apperrors.ErrUnknownConnection.WithInternal(err)
	}
	if visitor.Role != models.RoleVisitor {
		return Call{}, apperrors.ErrInvalidRequest.WithMessage("only visitors can request a call")
	}

	q.mu.Lock()
	if existing, ok := q.byVisitor[visitorID]; ok {
		q.mu.Unlock()
		return Call{}, apperrors.ErrInvalidRequest.WithMessage("call %s is still active for this visitor", existing)
	}
	call := &Call{
		ID:          q.newID(),
		Version:     1,
		Purpose:     purpose,
		Description: strings.TrimSpace(description),
		Status:      StatusWaiting,
		VisitorID:   visitorID,
		Visitor:     visitor.Identity,
		CreatedAt:   q.now(),
	}
	q.calls[call.ID] = call
	q.waiting = append(q.waiting, call.ID)
	q.byVisitor[visitorID] = call.ID
	snapshot := *call
	depth := len(q.waiting)
	q.mu.Unlock()

	q.committed(ctx, snapshot, depth)
	return snapshot, nil
}

// AcceptCall claims a waiting call for a staff connection. Exactly one of any
// number of concurrent accepts for the same call succeeds; the others get
// ErrCallClaimed.
func (q *Queue) AcceptCall(ctx context.Context, callID, staffID string) (Call, error) {
	staff, err := q.dir.Lookup(staffID)
	if err != nil {
		return Call{}, apperrors.ErrUnknownConnection.WithInternal(err)
	}
	if staff.Role != models.RoleStaff {
		return Call{}, apperrors.ErrInvalidRequest.WithMessage("only staff can accept calls")
	}

	q.mu.Lock()
	call, ok := q.calls[callID]
	if !ok {
		err := q.missingLocked(callID)
		q.mu.Unlock()
		return Call{}, err
	}
	switch {
	case call.Status == StatusInProgress:
		q.mu.Unlock()
		metrics.AcceptConflicts.Inc()
		return Call{}, apperrors.ErrCallClaimed.WithMessage("call %s already claimed", callID)
	case call.Status != StatusWaiting:
		q.mu.Unlock()
		return Call{}, apperrors.ErrInvalidState.WithMessage("call %s is %s", callID, call.Status)
	}
	if current, busy := q.byStaff[staffID]; busy {
		q.mu.Unlock()
		return Call{}, apperrors.ErrInvalidState.WithMessage("finish call %s before accepting another", current)
	}

	started := q.now()
	call.Status = StatusInProgress
	call.StaffID = staffID
	call.Staff = staff.Identity
	call.StartedAt = &started
	call.Version++
	q.removeWaitingLocked(callID)
	q.byStaff[staffID] = callID
	snapshot := *call
	depth := len(q.waiting)
	q.mu.Unlock()

	q.committed(ctx, snapshot, depth)
	return snapshot, nil
}

// RecordDecision completes an in-progress call on behalf of its owning staff connection.
func (q *Queue) RecordDecision(ctx context.Context, callID, staffID string, decision Decision, notes string) (Call, error) {
	if !decision.Valid() {
		return Call{}, apperrors.ErrInvalidRequest.WithMessage("decision must be %q or %q", DecisionAccepted, DecisionRejected)
	}

	q.mu.Lock()
	call, ok := q.calls[callID]
	if !ok {
		err := q.missingLocked(callID)
		q.mu.Unlock()
		return Call{}, err
	}
	if call.Status != StatusInProgress {
		q.mu.Unlock()
		return Call{}, apperrors.ErrInvalidState.WithMessage("call %s is %s", callID, call.Status)
	}
	if call.StaffID != staffID {
		q.mu.Unlock()
		return Call{}, apperrors.ErrNotOwner.WithMessage("call %s is held by another staff member", callID)
	}

	ended := q.now()
	call.Status = StatusCompleted
	call.Decision = decision
	call.Notes = strings.TrimSpace(notes)
	call.EndedAt = &ended
	call.Duration = ended.Sub(*call.StartedAt)
	call.Version++
	q.releaseLocked(call)
	snapshot := *call
	depth := len(q.waiting)
	q.mu.Unlock()

	metrics.CallDuration.Observe(snapshot.Duration.Seconds())
	q.committed(ctx, snapshot, depth)
	return snapshot, nil
}

// Abandon rejects the active call held by connID, if any. It is driven by
// connection teardown and is a no-op for connections without an active call.
func (q *Queue) Abandon(ctx context.Context, connID string) (Abandonment, bool) {
	q.mu.Lock()
	callID, ok := q.byVisitor[connID]
	reason := ReasonVisitorDisconnected
	if !ok {
		callID, ok = q.byStaff[connID]
		reason = ReasonStaffDisconnected
	}
	if !ok {
		q.mu.Unlock()
		return Abandonment{}, false
	}

	call := q.calls[callID]
	peer, _ := call.Peer(connID)
	q.rejectLocked(call, reason)
	snapshot := *call
	depth := len(q.waiting)
	q.mu.Unlock()

	q.committed(ctx, snapshot, depth)
	return Abandonment{Call: snapshot, Peer: peer}, true
}

// ExpireWaiting rejects calls that have been waiting longer than maxWait.
func (q *Queue) ExpireWaiting(ctx context.Context, maxWait time.Duration) []Call {
	if maxWait <= 0 {
		return nil
	}

	q.mu.Lock()
	cutoff := q.now().Add(-maxWait)
	var expired []Call
	for _, id := range append([]string(nil), q.waiting...) {
		call := q.calls[id]
		if !call.CreatedAt.Before(cutoff) {
			// waiting is in creation order
			break
		}
		q.rejectLocked(call, ReasonExpired)
		expired = append(expired, *call)
	}
	depth := len(q.waiting)
	q.mu.Unlock()

	for _, call := range expired {
		q.committed(ctx, call, depth)
	}
	return expired
}

// Prune drops terminal calls that ended before the retention window from
// memory. They remain available through the journal.
func (q *Queue) Prune(retain time.Duration) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-retain)
	n := 0
	for id, call := range q.calls {
		if call.Status.Terminal() && call.EndedAt != nil && call.EndedAt.Before(cutoff) {
			delete(q.calls, id)
			q.pruned[id] = call.Status
			n++
		}
	}
	return n
}

// missingLocked explains why callID is not in memory. A pruned call still
// reports its terminal status so late transitions fail as they would have
// before pruning.
func (q *Queue) missingLocked(callID string) error {
	if status, ok := q.pruned[callID]; ok {
		return apperrors.ErrInvalidState.WithMessage("call %s is %s", callID, status)
	}
	return apperrors.ErrCallNotFound.WithMessage("call %s not found", callID)
}

// ListWaiting returns waiting calls, oldest first.
func (q *Queue) ListWaiting() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Call, 0, len(q.waiting))
	for _, id := range q.waiting {
		out = append(out, *q.calls[id])
	}
	return out
}

// Get returns the call with the given id.
func (q *Queue) Get(callID string) (Call, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	call, ok := q.calls[callID]
	if !ok {
		return Call{}, apperrors.ErrCallNotFound.WithMessage("call %s not found", callID)
	}
	return *call, nil
}

// ActiveCall returns the waiting or in-progress call connID is part of.
func (q *Queue) ActiveCall(connID string) (Call, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.byVisitor[connID]
	if !ok {
		id, ok = q.byStaff[connID]
	}
	if !ok {
		return Call{}, false
	}
	return *q.calls[id], true
}

// Bound reports whether a and b are the two parties of the same in-progress call.
func (q *Queue) Bound(a, b string) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.byVisitor[a]
	if !ok {
		id, ok = q.byStaff[a]
	}
	if !ok {
		return "", false
	}
	call := q.calls[id]
	if call.Status != StatusInProgress {
		return "", false
	}
	if peer, ok := call.Peer(a); ok && peer == b {
		return call.ID, true
	}
	return "", false
}

func (q *Queue) rejectLocked(call *Call, reason string) {
	ended := q.now()
	if call.Status == StatusWaiting {
		q.removeWaitingLocked(call.ID)
	} else if call.StartedAt != nil {
		call.Duration = ended.Sub(*call.StartedAt)
	}
	call.Status = StatusRejected
	call.EndReason = reason
	call.EndedAt = &ended
	call.Version++
	q.releaseLocked(call)
}

func (q *Queue) releaseLocked(call *Call) {
	if q.byVisitor[call.VisitorID] == call.ID {
		delete(q.byVisitor, call.VisitorID)
	}
	if call.StaffID != "" && q.byStaff[call.StaffID] == call.ID {
		delete(q.byStaff, call.StaffID)
	}
}

func (q *Queue) removeWaitingLocked(callID string) {
	for i, id := range q.waiting {
		if id == callID {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			return
		}
	}
}

func (q *Queue) committed(ctx context.Context, call Call, waitingDepth int) {
	metrics.CallTransitions.WithLabelValues(string(call.Status)).Inc()
	metrics.WaitingCalls.Set(float64(waitingDepth))

	q.log.Info("call transition",
		zap.String("call_id", call.ID),
		zap.String("status", string(call.Status)),
		zap.String("visitor_id", call.VisitorID),
		zap.String("staff_id", call.StaffID),
		zap.Uint64("version", call.Version),
	)

	if q.journal == nil {
		return
	}
	if err := q.journal.Record(ctx, call); err != nil {
		q.log.Warn("journal write failed",
			zap.String("call_id", call.ID),
			zap.String("status", string(call.Status)),
			zap.Error(err),
		)
	}
}
