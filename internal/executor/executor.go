// Package executor applies decided actions to the memory store. It is
// the only writer: validation happens before any mutation, and store
// unavailability is retried with bounded backoff so a flaky backend
// never turns into a fake reward signal.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mnemonlabs/mnemon/internal/memory"
	"github.com/mnemonlabs/mnemon/internal/observe"
	"github.com/mnemonlabs/mnemon/internal/policy"
)

// ErrInvalidTarget means the action references a record outside the
// retrieval result it was decided against.
var ErrInvalidTarget = errors.New("executor: invalid action target")

// Backoff bounds the retry schedule for unavailable stores.
type Backoff struct {
	Attempts   int
	Initial    time.Duration
	Multiplier float64
}

// DefaultBackoff retries twice more after the first failure, 100ms
// then 200ms apart.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    100 * time.Millisecond,
		Multiplier: 2,
	}
}

// Outcome describes what actually happened to the store.
type Outcome struct {
	// ID is the acted-on record: the new id for ADD, the target for
	// UPDATE and DELETE, empty for NONE.
	ID    string
	Event policy.Kind
	// Memory is the text now stored under ID; empty after DELETE and
	// NONE. Previous is the text replaced or removed.
	Memory   string
	Previous string
}

// Executor mutates the store on behalf of the policy.
type Executor struct {
	store   memory.Store
	backoff Backoff
	obs     *observe.Observer
}

// New builds an executor around a store.
func New(store memory.Store, backoff Backoff, obs *observe.Observer) *Executor {
	return &Executor{
		store:   store,
		backoff: backoff,
		obs:     obs,
	}
}

// ValidateAction checks that a target-bearing action references a
// record in the retrieval result it was decided against.
func ValidateAction(action policy.Action, retrieved []memory.Retrieved) error {
	if !action.Kind().RequiresTarget() {
		return nil
	}
	if action.Target() == "" {
		return fmt.Errorf("%w: empty target for %s", ErrInvalidTarget, action.Kind())
	}
	for _, r := range retrieved {
		if r.Record.ID == action.Target() {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidTarget, action)
}

// Apply executes the action against the store. Unavailability is
// retried per the backoff; on exhaustion the last error is returned
// wrapped so callers can drop the step.
func (e *Executor) Apply(ctx context.Context, action policy.Action, fact memory.CandidateFact, retrieved []memory.Retrieved) (Outcome, error) {
	if err := ValidateAction(action, retrieved); err != nil {
		return Outcome{}, err
	}

	switch action.Kind() {
	case policy.KindAdd:
		var id string
		err := e.retry(ctx, "insert", func() error {
			var err error
			id, err = e.store.Insert(ctx, fact.Text, fact.Embedding)
			return err
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{ID: id, Event: policy.KindAdd, Memory: fact.Text}, nil

	case policy.KindUpdate:
		err := e.retry(ctx, "update", func() error {
			return e.store.Update(ctx, action.Target(), fact.Text, fact.Embedding)
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			ID:       action.Target(),
			Event:    policy.KindUpdate,
			Memory:   fact.Text,
			Previous: previousText(retrieved, action.Target()),
		}, nil

	case policy.KindDelete:
		err := e.retry(ctx, "delete", func() error {
			return e.store.Delete(ctx, action.Target())
		})
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			ID:       action.Target(),
			Event:    policy.KindDelete,
			Previous: previousText(retrieved, action.Target()),
		}, nil

	default:
		return Outcome{Event: policy.KindNone}, nil
	}
}

// retry runs op, retrying only unavailability. NotFound and every
// other error return immediately.
func (e *Executor) retry(ctx context.Context, op string, fn func() error) error {
	delay := e.backoff.Initial
	attempts := e.backoff.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, memory.ErrUnavailable) {
			return err
		}
		if attempt == attempts {
			break
		}
		e.obs.Log().Warn().
			Str("op", op).
			Int("attempt", attempt).
			Err(err).
			Msg("store unavailable, backing off")

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * e.backoff.Multiplier)
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

func previousText(retrieved []memory.Retrieved, id string) string {
	for _, r := range retrieved {
		if r.Record.ID == id {
			return r.Record.Text
		}
	}
	return ""
}
