package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketdash/marketd/pkg/store"
)

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the upstream-bound request may proceed.
	Allowed bool

	// Plan is the user's tier at the time of the check.
	Plan Plan

	// Limit is the daily ceiling that applies (0 for uncapped plans).
	Limit int

	// Count is the daily counter after the check.
	Count int
}

// Tracker gates upstream-bound requests against per-user daily quotas.
//
// The reset-check-increment sequence runs under a per-user mutex so two
// concurrent requests can never both pass the ceiling check before either
// increments.
type Tracker struct {
	users     *store.Users
	freeLimit int
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTracker creates a quota tracker. freeLimit is the Free plan's daily
// ceiling; loc is the reference zone for calendar-day rollover.
func NewTracker(users *store.Users, freeLimit int, loc *time.Location, logger zerolog.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	return &Tracker{
		users:     users,
		freeLimit: freeLimit,
		loc:       loc,
		now:       time.Now,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing admission for one user.
func (t *Tracker) userLock(email string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[email]
	if !ok {
		l = &sync.Mutex{}
		t.locks[email] = l
	}
	return l
}

// Admit performs the admission check for one upstream-bound request:
// reset the counter if the stored date is not today, check the plan ceiling,
// and on success increment the counter and stamp the request time, persisting
// the updated state. Denial mutates nothing beyond a date-rollover reset.
func (t *Tracker) Admit(ctx context.Context, email string) (Decision, error) {
	lock := t.userLock(email)
	lock.Lock()
	defer lock.Unlock()

	user, err := t.users.GetByEmail(ctx, email)
	if err != nil {
		return Decision{}, fmt.Errorf("load quota state: %w", err)
	}

	now := t.now()
	count := user.DailyRequestCount

	rolled := user.LastRequestDate == nil || !sameDay(*user.LastRequestDate, now, t.loc)
	if rolled {
		count = 0
		if user.LastRequestDate != nil {
			rolloverResetsTotal.Inc()
		}
	}

	plan := ParsePlan(user.Plan)
	decision := Decision{Plan: plan, Count: count}
	if plan.Capped() {
		decision.Limit = t.freeLimit
	}

	if plan.Capped() && count >= t.freeLimit {
		// The rollover reset may persist even on denial; the stamp does not.
		if rolled && count != user.DailyRequestCount {
			if err := t.users.UpdateQuota(ctx, email, count, nil); err != nil {
				return Decision{}, fmt.Errorf("persist rollover: %w", err)
			}
		}

		denialsTotal.WithLabelValues(string(plan)).Inc()
		t.logger.Warn().
			Str("email", email).
			Str("plan", string(plan)).
			Int("count", count).
			Int("limit", t.freeLimit).
			Msg("Daily quota exceeded")

		return decision, nil
	}

	count++
	if err := t.users.UpdateQuota(ctx, email, count, &now); err != nil {
		return Decision{}, fmt.Errorf("persist quota state: %w", err)
	}

	admissionsTotal.WithLabelValues(string(plan)).Inc()
	t.logger.Debug().
		Str("email", email).
		Str("plan", string(plan)).
		Int("count", count).
		Msg("Request admitted")

	decision.Allowed = true
	decision.Count = count
	return decision, nil
}

// sameDay reports whether a and b fall on the same calendar date in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}
