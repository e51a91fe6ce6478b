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

package registry

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
	ProposalCreatedEventType     event.EventType = "governance.proposal_created"
	ProposalStateChangeEventType event.EventType = "governance.proposal_state"
)

type ProposalCreatedEvent struct {
	ProposalID uint64
	Proposer   string
	Type       ProposalType
	Title      string
}

type ProposalStateChangeEvent struct {
	ProposalID uint64
	OldState   ProposalState
	NewState   ProposalState
}

type Config struct {
	Logger       *slog.Logger
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Database     *database.Database
	VotingDelay  time.Duration
	VotingPeriod time.Duration
	Now          func() time.Time
}

// ProposalParams carries the caller-supplied fields for a new proposal
type ProposalParams struct {
	Proposer        string
	Actions         []Action
	Title           string
	Description     string
	Category        string
	Type            ProposalType
	RequestedAmount int64
	Beneficiary     string
}

type Registry struct {
	config  Config
	metrics struct {
		proposalsCreated prometheus.Counter
		proposalsActive  prometheus.Gauge
	}
	logger    *slog.Logger
	eventBus  *event.EventBus
	proposals map[uint64]*Proposal
	// active index: insertion-ordered slice plus position map for O(1)
	// swap-with-last removal. Order among remaining elements is not
	// preserved after a removal
	active    []uint64
	activeIdx map[uint64]int
	nextID    uint64
	sync.RWMutex
}

func New(config Config) (*Registry, error) {
	r := &Registry{
		config:    config,
		eventBus:  config.EventBus,
		proposals: make(map[uint64]*Proposal),
		activeIdx: make(map[uint64]int),
		nextID:    1,
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		r.logger = config.Logger
	}
	if r.config.Now == nil {
		r.config.Now = time.Now
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	r.metrics.proposalsCreated = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_proposals_created_total",
			Help: "total proposals created",
		},
	)
	r.metrics.proposalsActive = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "gavel_proposals_active",
			Help: "current count of non-terminal proposals",
		},
	)
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

// load restores proposals from the metadata store
func (r *Registry) load() error {
	if r.config.Database == nil {
		return nil
	}
	rows, err := r.config.Database.GetProposals(nil)
	if err != nil {
		return fmt.Errorf("failed to load proposals: %w", err)
	}
	for _, row := range rows {
		proposal, err := r.proposalFromModel(row)
		if err != nil {
			return err
		}
		r.proposals[proposal.ID] = proposal
		if !proposal.State.Terminal() {
			r.activeIdx[proposal.ID] = len(r.active)
			r.active = append(r.active, proposal.ID)
		}
		if proposal.ID >= r.nextID {
			r.nextID = proposal.ID + 1
		}
	}
	r.metrics.proposalsActive.Set(float64(len(r.active)))
	if len(rows) > 0 {
		r.logger.Info(
			"restored proposals",
			"component", "registry",
			"count", len(rows),
			"active", len(r.active),
		)
	}
	return nil
}

func (r *Registry) proposalFromModel(
	row *models.Proposal,
) (*Proposal, error) {
	actionRows, payloads, err := r.config.Database.GetProposalActions(
		row.ID,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal actions: %w", err)
	}
	actions := make([]Action, len(actionRows))
	for i, actionRow := range actionRows {
		actions[i] = Action{
			Target:  actionRow.Target,
			Value:   actionRow.Value,
			Payload: payloads[i],
		}
	}
	proposal := &Proposal{
		ID:              row.ID,
		Proposer:        row.Proposer,
		Actions:         actions,
		Title:           row.Title,
		Description:     row.Description,
		Category:        row.Category,
		Type:            ProposalType(row.Type),
		State:           ProposalState(row.State),
		RequestedAmount: row.RequestedAmount,
		Beneficiary:     row.Beneficiary,
		CreatedAt:       time.Unix(row.CreatedAt, 0),
		VotingStart:     time.Unix(row.VotingStart, 0),
		VotingEnd:       time.Unix(row.VotingEnd, 0),
	}
	if row.ExecutedAt != nil {
		executedAt := time.Unix(*row.ExecutedAt, 0)
		proposal.ExecutedAt = &executedAt
	}
	return proposal, nil
}

func (r *Registry) persist(proposal *Proposal) error {
	if r.config.Database == nil {
		return nil
	}
	row := &models.Proposal{
		ID:              proposal.ID,
		Proposer:        proposal.Proposer,
		Title:           proposal.Title,
		Description:     proposal.Description,
		Category:        proposal.Category,
		Type:            uint8(proposal.Type),
		State:           uint8(proposal.State),
		RequestedAmount: proposal.RequestedAmount,
		Beneficiary:     proposal.Beneficiary,
		CreatedAt:       proposal.CreatedAt.Unix(),
		VotingStart:     proposal.VotingStart.Unix(),
		VotingEnd:       proposal.VotingEnd.Unix(),
	}
	if proposal.ExecutedAt != nil {
		executedAt := proposal.ExecutedAt.Unix()
		row.ExecutedAt = &executedAt
	}
	txn := r.config.Database.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		if err := r.config.Database.SetProposal(row, txn); err != nil {
			return err
		}
		for idx, action := range proposal.Actions {
			actionRow := &models.ProposalAction{
				ProposalID: proposal.ID,
				Idx:        idx,
				Target:     action.Target,
				Value:      action.Value,
			}
			err := r.config.Database.SetProposalAction(
				actionRow,
				action.Payload,
				txn,
			)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to persist proposal: %w", err)
	}
	return nil
}

// Create validates and records a new proposal in Pending state and appends
// it to the active index. It returns the assigned sequential id
func (r *Registry) Create(params ProposalParams) (uint64, error) {
	if params.Title == "" {
		return 0, &ValidationError{Field: "title", Reason: "cannot be empty"}
	}
	if params.Description == "" {
		return 0, &ValidationError{
			Field:  "description",
			Reason: "cannot be empty",
		}
	}
	if params.Type > ProposalTypeEmergencyAction {
		return 0, &ValidationError{
			Field:  "type",
			Reason: "unknown proposal type",
		}
	}
	r.Lock()
	defer r.Unlock()
	now := r.config.Now()
	proposal := &Proposal{
		ID:              r.nextID,
		Proposer:        params.Proposer,
		Actions:         make([]Action, len(params.Actions)),
		Title:           params.Title,
		Description:     params.Description,
		Category:        params.Category,
		Type:            params.Type,
		State:           ProposalStatePending,
		RequestedAmount: params.RequestedAmount,
		Beneficiary:     params.Beneficiary,
		CreatedAt:       now,
		VotingStart:     now.Add(r.config.VotingDelay),
		VotingEnd:       now.Add(r.config.VotingDelay + r.config.VotingPeriod),
	}
	copy(proposal.Actions, params.Actions)
	if err := r.persist(proposal); err != nil {
		return 0, err
	}
	r.nextID++
	r.proposals[proposal.ID] = proposal
	r.activeIdx[proposal.ID] = len(r.active)
	r.active = append(r.active, proposal.ID)
	r.metrics.proposalsCreated.Inc()
	r.metrics.proposalsActive.Set(float64(len(r.active)))
	r.logger.Info(
		"created proposal",
		"component", "registry",
		"proposal_id", proposal.ID,
		"proposer", proposal.Proposer,
		"type", proposal.Type.String(),
	)
	if r.eventBus != nil {
		r.eventBus.Publish(
			ProposalCreatedEventType,
			event.NewEvent(
				ProposalCreatedEventType,
				ProposalCreatedEvent{
					ProposalID: proposal.ID,
					Proposer:   proposal.Proposer,
					Type:       proposal.Type,
					Title:      proposal.Title,
				},
			),
		)
	}
	return proposal.ID, nil
}

// Get returns a copy of the proposal with the given id
func (r *Registry) Get(proposalID uint64) (Proposal, error) {
	r.RLock()
	defer r.RUnlock()
	proposal, ok := r.proposals[proposalID]
	if !ok {
		return Proposal{}, &NotFoundError{ProposalID: proposalID}
	}
	return proposal.copy(), nil
}

// ListActive returns the ids of all non-terminal proposals. The order is
// insertion order until a removal occurs, after which it is unspecified
func (r *Registry) ListActive() []uint64 {
	r.RLock()
	defer r.RUnlock()
	ret := make([]uint64, len(r.active))
	copy(ret, r.active)
	return ret
}

// Len returns the total number of proposals ever created
func (r *Registry) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.proposals)
}

// Transition moves a proposal to a new state, enforcing the state machine.
// Reaching a terminal state removes the proposal from the active index and
// transitioning to Executed records the execution timestamp
func (r *Registry) Transition(
	proposalID uint64,
	newState ProposalState,
) error {
	r.Lock()
	defer r.Unlock()
	proposal, ok := r.proposals[proposalID]
	if !ok {
		return &NotFoundError{ProposalID: proposalID}
	}
	oldState := proposal.State
	if !validTransition(oldState, newState) {
		return &InvalidTransitionError{
			ProposalID: proposalID,
			From:       oldState,
			To:         newState,
		}
	}
	proposal.State = newState
	if newState == ProposalStateExecuted {
		executedAt := r.config.Now()
		proposal.ExecutedAt = &executedAt
	}
	if err := r.persist(proposal); err != nil {
		proposal.State = oldState
		proposal.ExecutedAt = nil
		return err
	}
	if newState.Terminal() {
		r.removeFromActive(proposalID)
	}
	r.logger.Info(
		"proposal state change",
		"component", "registry",
		"proposal_id", proposalID,
		"old_state", oldState.String(),
		"new_state", newState.String(),
	)
	if r.eventBus != nil {
		r.eventBus.Publish(
			ProposalStateChangeEventType,
			event.NewEvent(
				ProposalStateChangeEventType,
				ProposalStateChangeEvent{
					ProposalID: proposalID,
					OldState:   oldState,
					NewState:   newState,
				},
			),
		)
	}
	return nil
}

// removeFromActive drops an id from the active index via swap-with-last.
// Assumes the write lock is held
func (r *Registry) removeFromActive(proposalID uint64) {
	idx, ok := r.activeIdx[proposalID]
	if !ok {
		return
	}
	lastIdx := len(r.active) - 1
	if idx != lastIdx {
		lastID := r.active[lastIdx]
		r.active[idx] = lastID
		r.activeIdx[lastID] = idx
	}
	r.active = r.active[:lastIdx]
	delete(r.activeIdx, proposalID)
	r.metrics.proposalsActive.Set(float64(len(r.active)))
}
