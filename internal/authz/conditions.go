package authz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPredicateTimeout bounds a single custom predicate call.
const DefaultPredicateTimeout = 2 * time.Second

// Predicate is an executable check registered under a stable identifier.
// Predicates may perform remote work and must honour ctx.
type Predicate func(ctx context.Context, user User, env Context) (bool, error)

// ErrUnknownCondition marks a descriptor the registry cannot resolve.
var ErrUnknownCondition = errors.New("authz: unknown condition")

// ConditionRegistry resolves condition descriptors into executable
// checks. Unknown kinds and unknown predicate references resolve to
// "not satisfied" so configuration mistakes never widen access.
type ConditionRegistry struct {
	mu         sync.RWMutex
	predicates map[string]Predicate
	timeout    time.Duration
	logger     *slog.Logger
}

// NewConditionRegistry constructs an empty registry.
func NewConditionRegistry(logger *slog.Logger) *ConditionRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConditionRegistry{
		predicates: make(map[string]Predicate),
		timeout:    DefaultPredicateTimeout,
		logger:     logger,
	}
}

// SetPredicateTimeout overrides the per-call predicate timeout.
func (r *ConditionRegistry) SetPredicateTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	r.mu.Lock()
	r.timeout = d
	r.mu.Unlock()
}

// RegisterPredicate installs a custom predicate under the given id.
// Registration happens at startup; re-registering an id replaces the
// previous predicate.
func (r *ConditionRegistry) RegisterPredicate(id string, p Predicate) error {
	id = normalize(id)
	if id == "" {
		return fmt.Errorf("authz: predicate id required")
	}
	if p == nil {
		return fmt.Errorf("authz: predicate %q is nil", id)
	}
	r.mu.Lock()
	r.predicates[id] = p
	r.mu.Unlock()
	return nil
}

// Evaluate runs a condition descriptor against a user and evaluation
// context. The boolean is false whenever the error is non-nil; the
// error describes a fault (unknown kind, predicate panic, timeout)
// rather than a legitimate "condition not met".
func (r *ConditionRegistry) Evaluate(ctx context.Context, cond *Condition, user User, env Context, now time.Time) (bool, error) {
	if cond == nil {
		return true, nil
	}
	switch cond.Kind {
	case ConditionTimeWindow:
		if cond.Window == nil {
			return false, fmt.Errorf("%w: time_window without window", ErrUnknownCondition)
		}
		return cond.Window.Contains(now)
	case ConditionLocationWhitelist:
		return containsString(cond.Locations, normalize(env.Location)), nil
	case ConditionPredicate:
		return r.runPredicate(ctx, cond.Predicate, user, env)
	default:
		r.logger.Warn("unresolvable condition kind", slog.String("kind", string(cond.Kind)))
		return false, fmt.Errorf("%w: kind %q", ErrUnknownCondition, cond.Kind)
	}
}

func (r *ConditionRegistry) runPredicate(ctx context.Context, id string, user User, env Context) (ok bool, err error) {
	id = normalize(id)
	r.mu.RLock()
	pred, found := r.predicates[id]
	timeout := r.timeout
	r.mu.RUnlock()
	if !found {
		r.logger.Warn("unknown predicate reference", slog.String("predicate", id))
		return false, fmt.Errorf("%w: predicate %q", ErrUnknownCondition, id)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		ok  bool
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- result{err: fmt.Errorf("authz: predicate %q panicked: %v", id, rec)}
			}
		}()
		ok, err := pred(ctx, user, env)
		done <- result{ok: ok, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return false, fmt.Errorf("authz: predicate %q: %w", id, res.err)
		}
		return res.ok, nil
	case <-ctx.Done():
		return false, fmt.Errorf("authz: predicate %q: %w", id, ctx.Err())
	}
}

// Contains reports whether the instant falls inside the half-open
// window [Start, End) in the instant's own location. Windows where
// Start is later than End wrap past midnight.
func (w TimeRange) Contains(at time.Time) (bool, error) {
	start, err := minuteOfDay(w.Start)
	if err != nil {
		return false, err
	}
	end, err := minuteOfDay(w.End)
	if err != nil {
		return false, err
	}
	minute := at.Hour()*60 + at.Minute()
	if start <= end {
		return minute >= start && minute < end, nil
	}
	return minute >= start || minute < end, nil
}

func minuteOfDay(value string) (int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("authz: bad time-of-day %q: %w", value, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
