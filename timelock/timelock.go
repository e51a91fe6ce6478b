// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package timelock

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gavel/database"
	"github.com/blinklabs-io/gavel/database/models"
	"github.com/blinklabs-io/gavel/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ScheduledEventType event.EventType = "timelock.scheduled"
	ExecutedEventType  event.EventType = "timelock.executed"
	CancelledEventType event.EventType = "timelock.cancelled"
)

type ScheduledEvent struct {
	ProposalID uint64
	ReadyAt    time.Time
}

type ExecutedEvent struct {
	ProposalID uint64
}

type CancelledEvent struct {
	ProposalID uint64
}

type AlreadyScheduledError struct {
	ProposalID uint64
}

func (e *AlreadyScheduledError) Error() string {
	return fmt.Sprintf("proposal %d is already scheduled", e.ProposalID)
}

type NotReadyError struct {
	ProposalID uint64
	ReadyAt    time.Time
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf(
		"proposal %d is not ready for execution (ready at %s)",
		e.ProposalID,
		e.ReadyAt.Format(time.RFC3339),
	)
}

type NotFoundError struct {
	ProposalID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proposal %d has no timelock entry", e.ProposalID)
}

type AlreadyExecutedError struct {
	ProposalID uint64
}

func (e *AlreadyExecutedError) Error() string {
	return fmt.Sprintf("proposal %d has already been executed", e.ProposalID)
}

// Entry tracks the execution gate for one proposal. Once ReadyAt passes the
// entry stays executable indefinitely unless cancelled
type Entry struct {
	ProposalID  uint64
	ScheduledAt time.Time
	ReadyAt     time.Time
	Executed    bool
	Cancelled   bool
}

type Config struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	Now          func() time.Time
}

type Scheduler struct {
	config  Config
	metrics struct {
		scheduled prometheus.Counter
		pending   prometheus.Gauge
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	entries  map[uint64]*Entry
	sync.RWMutex
}

func New(config Config) (*Scheduler, error) {
	s := &Scheduler{
		config:   config,
		eventBus: config.EventBus,
		entries:  make(map[uint64]*Entry),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		s.logger = config.Logger
	}
	if s.config.Now == nil {
		s.config.Now = time.Now
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	s.metrics.scheduled = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_timelock_scheduled_total",
			Help: "total proposals scheduled for timelocked execution",
		},
	)
	s.metrics.pending = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "gavel_timelock_pending",
			Help: "current count of scheduled but unexecuted proposals",
		},
	)
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) load() error {
	if s.config.Database == nil {
		return nil
	}
	rows, err := s.config.Database.GetTimelockEntries(nil)
	if err != nil {
		return fmt.Errorf("failed to load timelock entries: %w", err)
	}
	pending := 0
	for _, row := range rows {
		entry := &Entry{
			ProposalID:  row.ProposalID,
			ScheduledAt: time.Unix(row.ScheduledAt, 0),
			ReadyAt:     time.Unix(row.ReadyAt, 0),
			Executed:    row.Executed,
			Cancelled:   row.Cancelled,
		}
		s.entries[entry.ProposalID] = entry
		if !entry.Executed && !entry.Cancelled {
			pending++
		}
	}
	s.metrics.pending.Set(float64(pending))
	return nil
}

func (s *Scheduler) persist(entry *Entry) error {
	if s.config.Database == nil {
		return nil
	}
	row := &models.TimelockEntry{
		ProposalID:  entry.ProposalID,
		ScheduledAt: entry.ScheduledAt.Unix(),
		ReadyAt:     entry.ReadyAt.Unix(),
		Executed:    entry.Executed,
		Cancelled:   entry.Cancelled,
	}
	if err := s.config.Database.SetTimelockEntry(row, nil); err != nil {
		return fmt.Errorf("failed to persist timelock entry: %w", err)
	}
	return nil
}

// Schedule arms the execution gate for a proposal with the given delay
func (s *Scheduler) Schedule(proposalID uint64, delay time.Duration) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.entries[proposalID]; ok {
		return &AlreadyScheduledError{ProposalID: proposalID}
	}
	now := s.config.Now()
	entry := &Entry{
		ProposalID:  proposalID,
		ScheduledAt: now,
		ReadyAt:     now.Add(delay),
	}
	if err := s.persist(entry); err != nil {
		return err
	}
	s.entries[proposalID] = entry
	s.metrics.scheduled.Inc()
	s.metrics.pending.Inc()
	s.logger.Info(
		"scheduled proposal execution",
		"component", "timelock",
		"proposal_id", proposalID,
		"ready_at", entry.ReadyAt,
	)
	if s.eventBus != nil {
		s.eventBus.Publish(
			ScheduledEventType,
			event.NewEvent(
				ScheduledEventType,
				ScheduledEvent{
					ProposalID: proposalID,
					ReadyAt:    entry.ReadyAt,
				},
			),
		)
	}
	return nil
}

// IsReady returns true once the delay has elapsed for a scheduled proposal
// that has not been executed or cancelled
func (s *Scheduler) IsReady(proposalID uint64) bool {
	s.RLock()
	defer s.RUnlock()
	entry, ok := s.entries[proposalID]
	if !ok {
		return false
	}
	return s.entryReady(entry)
}

func (s *Scheduler) entryReady(entry *Entry) bool {
	if entry.Executed || entry.Cancelled {
		return false
	}
	return !s.config.Now().Before(entry.ReadyAt)
}

// MarkExecuted flips a ready entry to executed. A second call fails rather
// than silently succeeding
func (s *Scheduler) MarkExecuted(proposalID uint64) error {
	s.Lock()
	defer s.Unlock()
	entry, ok := s.entries[proposalID]
	if !ok {
		return &NotFoundError{ProposalID: proposalID}
	}
	if !s.entryReady(entry) {
		return &NotReadyError{
			ProposalID: proposalID,
			ReadyAt:    entry.ReadyAt,
		}
	}
	entry.Executed = true
	if err := s.persist(entry); err != nil {
		entry.Executed = false
		return err
	}
	s.metrics.pending.Dec()
	s.logger.Info(
		"marked proposal executed",
		"component", "timelock",
		"proposal_id", proposalID,
	)
	if s.eventBus != nil {
		s.eventBus.Publish(
			ExecutedEventType,
			event.NewEvent(
				ExecutedEventType,
				ExecutedEvent{ProposalID: proposalID},
			),
		)
	}
	return nil
}

// Cancel aborts a scheduled entry. Cancelling an already-cancelled entry is
// a no-op; cancelling an executed entry fails
func (s *Scheduler) Cancel(proposalID uint64) error {
	s.Lock()
	defer s.Unlock()
	entry, ok := s.entries[proposalID]
	if !ok {
		return &NotFoundError{ProposalID: proposalID}
	}
	if entry.Executed {
		return &AlreadyExecutedError{ProposalID: proposalID}
	}
	if entry.Cancelled {
		return nil
	}
	entry.Cancelled = true
	if err := s.persist(entry); err != nil {
		entry.Cancelled = false
		return err
	}
	s.metrics.pending.Dec()
	s.logger.Info(
		"cancelled scheduled execution",
		"component", "timelock",
		"proposal_id", proposalID,
	)
	if s.eventBus != nil {
		s.eventBus.Publish(
			CancelledEventType,
			event.NewEvent(
				CancelledEventType,
				CancelledEvent{ProposalID: proposalID},
			),
		)
	}
	return nil
}

// Get returns a copy of the timelock entry for a proposal
func (s *Scheduler) Get(proposalID uint64) (Entry, error) {
	s.RLock()
	defer s.RUnlock()
	entry, ok := s.entries[proposalID]
	if !ok {
		return Entry{}, &NotFoundError{ProposalID: proposalID}
	}
	return *entry, nil
}
