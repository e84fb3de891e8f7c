package discuss

import (
	"context"
	"fmt"
	"sync"
)

type MutationState int

const (
	MutationIdle MutationState = iota
	MutationPending
	MutationCommitted
	MutationRolledBack
)

func (state MutationState) String() string {
	switch state {
	case MutationIdle:
		return "idle"
	case MutationPending:
		return "pending"
	case MutationCommitted:
		return "committed"
	case MutationRolledBack:
		return "rolled_back"
	default:
		return fmt.Sprintf("MutationState(%d)", int(state))
	}
}

// Mutation is the pending outcome of one optimistic operation. The
// speculative write has already happened when the caller receives it.
//
// A mutation rejected before its speculative write (validation, unknown id)
// stays idle, is done immediately, and carries the rejection in Err.
type Mutation struct {
	op        string
	commentID string

	mu      sync.Mutex
	state   MutationState
	comment *Comment
	err     error
	done    chan struct{}
}

func newMutation(op, commentID string) *Mutation {
	return &Mutation{
		op:        op,
		commentID: commentID,
		state:     MutationIdle,
		done:      make(chan struct{}),
	}
}

func (m *Mutation) Op() string {
	return m.op
}

// CommentID is the target id; for creates it is the temporary id until commit.
func (m *Mutation) CommentID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.commentID
}

func (m *Mutation) State() MutationState {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state
}

// Comment is the speculative record while pending and the server record once
// committed.
func (m *Mutation) Comment() *Comment {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.comment.Clone()
}

func (m *Mutation) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.err
}

func (m *Mutation) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until the mutation settles or ctx ends. Giving up on the wait
// does not cancel the mutation.
func (m *Mutation) Wait(ctx context.Context) (*Comment, error) {
	select {
	case <-m.done:
		return m.Comment(), m.Err()
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to wait for %s mutation: %w", m.op, ctx.Err())
	}
}

func (m *Mutation) begin(speculative *Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = MutationPending
	m.comment = speculative.Clone()
}

func (m *Mutation) commit(confirmed *Comment) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MutationPending {
		return
	}

	m.state = MutationCommitted

	if confirmed != nil {
		m.comment = confirmed.Clone()
		m.commentID = confirmed.ID
	}

	close(m.done)
}

func (m *Mutation) rollback(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MutationPending {
		return
	}

	m.state = MutationRolledBack
	m.err = err

	close(m.done)
}

func (m *Mutation) reject(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != MutationIdle {
		return
	}

	m.err = err

	close(m.done)
}
