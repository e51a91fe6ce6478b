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

package gavel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blinklabs-io/gavel/database"
	"github.com/blinklabs-io/gavel/event"
	"github.com/blinklabs-io/gavel/registry"
	"github.com/blinklabs-io/gavel/rewards"
	"github.com/blinklabs-io/gavel/tally"
	"github.com/blinklabs-io/gavel/timelock"
	"github.com/blinklabs-io/gavel/treasury"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const ActionDispatchedEventType event.EventType = "governance.action_dispatched"

type ActionDispatchedEvent struct {
	ProposalID uint64
	Index      int
	Target     string
	Value      int64
}

// ProposalParams carries the caller-supplied fields for a new proposal
type ProposalParams = registry.ProposalParams

// Action is one encoded step of a proposal's execution
type Action = registry.Action

// Stats is a point-in-time snapshot of engine counters
type Stats struct {
	TotalProposals    int
	ActiveProposals   int
	ExecutedProposals uint64
	TreasuryBalance   int64
	RewardsPool       int64
}

// Governor drives the proposal lifecycle and is the only component with
// authority to mutate the treasury and rewards ledgers
type Governor struct {
	config  Config
	metrics struct {
		proposalsExecuted prometheus.Counter
	}
	eventBus      *event.EventBus
	db            *database.Database
	registry      *registry.Registry
	tally         *tally.Engine
	timelock      *timelock.Scheduler
	treasury      *treasury.Ledger
	rewards       *rewards.Ledger
	execGrant     treasury.ExecGrant
	executedCount atomic.Uint64
	// Per-proposal locks: all mutating operations on one proposal
	// serialize through its lock while unrelated proposals proceed in
	// parallel
	locks         map[uint64]*sync.Mutex
	locksMutex    sync.Mutex
	shutdownFuncs []func(context.Context) error
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Governor, error) {
	g := &Governor{
		config: cfg,
		locks:  make(map[uint64]*sync.Mutex),
		done:   make(chan struct{}),
	}
	if err := g.configValidate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// Configure tracing
	if cfg.tracing {
		if err := g.setupTracing(); err != nil {
			return nil, err
		}
	}
	g.eventBus = event.NewEventBus(cfg.promRegistry)
	// Load database
	db, err := database.New(&database.Config{
		Logger:       cfg.logger,
		PromRegistry: cfg.promRegistry,
		DataDir:      cfg.dataDir,
		Tracing:      cfg.tracing,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	g.db = db
	// Load components
	g.registry, err = registry.New(registry.Config{
		Logger:       cfg.logger,
		EventBus:     g.eventBus,
		PromRegistry: cfg.promRegistry,
		Database:     db,
		VotingDelay:  cfg.votingDelay,
		VotingPeriod: cfg.votingPeriod,
		Now:          cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load proposal registry: %w", err)
	}
	g.tally, err = tally.New(tally.Config{
		Logger:        cfg.logger,
		EventBus:      g.eventBus,
		PromRegistry:  cfg.promRegistry,
		Database:      db,
		Oracle:        cfg.oracle,
		Proposals:     g.registry,
		QuorumPercent: cfg.quorumPercent,
		OracleTimeout: cfg.oracleTimeout,
		Now:           cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load tally engine: %w", err)
	}
	g.timelock, err = timelock.New(timelock.Config{
		Logger:       cfg.logger,
		EventBus:     g.eventBus,
		PromRegistry: cfg.promRegistry,
		Database:     db,
		Now:          cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load timelock scheduler: %w", err)
	}
	g.treasury, g.execGrant, err = treasury.New(treasury.Config{
		Logger:          cfg.logger,
		EventBus:        g.eventBus,
		PromRegistry:    cfg.promRegistry,
		Database:        db,
		Custody:         cfg.custody,
		TransferTimeout: cfg.transferTimeout,
		Now:             cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load treasury ledger: %w", err)
	}
	g.rewards, err = rewards.New(rewards.Config{
		Logger:          cfg.logger,
		EventBus:        g.eventBus,
		PromRegistry:    cfg.promRegistry,
		Database:        db,
		Custody:         cfg.custody,
		TransferTimeout: cfg.transferTimeout,
		Now:             cfg.now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load rewards ledger: %w", err)
	}
	// Init metrics
	promautoFactory := promauto.With(cfg.promRegistry)
	g.metrics.proposalsExecuted = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_proposals_executed_total",
			Help: "total proposals executed",
		},
	)
	if cfg.lifecycleInterval > 0 {
		go g.lifecycleLoop()
	}
	return g, nil
}

// proposalLock returns the mutex guarding all mutating operations for one
// proposal
func (g *Governor) proposalLock(proposalID uint64) *sync.Mutex {
	g.locksMutex.Lock()
	defer g.locksMutex.Unlock()
	lock, ok := g.locks[proposalID]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[proposalID] = lock
	}
	return lock
}

// lifecycleLoop periodically opens the voting window on pending proposals
func (g *Governor) lifecycleLoop() {
	ticker := time.NewTicker(g.config.lifecycleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-ticker.C:
			g.activatePending()
		}
	}
}

func (g *Governor) activatePending() {
	for _, proposalID := range g.registry.ListActive() {
		lock := g.proposalLock(proposalID)
		lock.Lock()
		if err := g.maybeActivate(proposalID); err != nil {
			g.config.logger.Error(
				"failed to activate proposal",
				"component", "governor",
				"proposal_id", proposalID,
				"error", err,
			)
		}
		lock.Unlock()
	}
}

// maybeActivate opens the voting window on a pending proposal whose start
// time has passed. Assumes the proposal lock is held
func (g *Governor) maybeActivate(proposalID uint64) error {
	proposal, err := g.registry.Get(proposalID)
	if err != nil {
		return err
	}
	if proposal.State != registry.ProposalStatePending {
		return nil
	}
	if g.config.now().Before(proposal.VotingStart) {
		return nil
	}
	return g.registry.Transition(proposalID, registry.ProposalStateActive)
}

// authorizeProposer checks that a caller may create or cancel proposals:
// either allow-listed or holding at least the proposal threshold share of
// the current total voting weight
func (g *Governor) authorizeProposer(
	ctx context.Context,
	caller string,
) error {
	if slices.Contains(g.config.allowList, caller) {
		return nil
	}
	if g.config.proposalThresholdPercent == 0 {
		return nil
	}
	oracleTimeout := g.config.oracleTimeout
	if oracleTimeout == 0 {
		oracleTimeout = 5 * time.Second
	}
	oracleCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()
	now := g.config.now()
	weight, err := g.config.oracle.WeightAt(oracleCtx, caller, now)
	if err != nil {
		return &OracleError{Err: err}
	}
	totalWeight, err := g.config.oracle.TotalWeightAt(oracleCtx, now)
	if err != nil {
		return &OracleError{Err: err}
	}
	if weight*100 < totalWeight*uint64(g.config.proposalThresholdPercent) {
		return &UnauthorizedError{
			Caller: caller,
			Reason: fmt.Sprintf(
				"voting weight %d is below the proposal threshold",
				weight,
			),
		}
	}
	return nil
}

// SubmitProposal creates a proposal after authorizing the proposer. For
// treasury allocation proposals the requested funds are earmarked up front
// with a release time past the end of the timelock
func (g *Governor) SubmitProposal(
	ctx context.Context,
	params ProposalParams,
) (uint64, error) {
	if err := g.authorizeProposer(ctx, params.Proposer); err != nil {
		return 0, err
	}
	if params.Type == registry.ProposalTypeTreasuryAllocation {
		treasuryActions := 0
		for _, action := range params.Actions {
			if action.Target == "treasury" {
				treasuryActions++
			}
		}
		if treasuryActions > 1 {
			return 0, &ValidationError{
				Field:  "actions",
				Reason: "at most one treasury action per proposal",
			}
		}
		if treasuryActions == 0 {
			params.Actions = append(params.Actions, registry.Action{
				Target: "treasury",
				Value:  params.RequestedAmount,
			})
		}
	}
	proposalID, err := g.registry.Create(params)
	if err != nil {
		return 0, err
	}
	if params.Type == registry.ProposalTypeTreasuryAllocation {
		proposal, err := g.registry.Get(proposalID)
		if err != nil {
			return 0, err
		}
		err = g.treasury.Allocate(
			proposalID,
			params.Beneficiary,
			params.RequestedAmount,
			params.Title,
			proposal.VotingEnd.Add(g.config.timelockDelay),
		)
		if err != nil {
			// Withdraw the proposal rather than leave it without its
			// allocation
			if cancelErr := g.registry.Transition(
				proposalID,
				registry.ProposalStateCancelled,
			); cancelErr != nil {
				err = errors.Join(err, cancelErr)
			}
			return 0, err
		}
	}
	return proposalID, nil
}

// CastVote records a vote on an active proposal and returns the weight
// assigned to it
func (g *Governor) CastVote(
	ctx context.Context,
	proposalID uint64,
	voter string,
	support tally.VoteSupport,
	reason string,
) (uint64, error) {
	lock := g.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()
	if err := g.maybeActivate(proposalID); err != nil {
		return 0, err
	}
	return g.tally.CastVote(ctx, proposalID, voter, support, reason)
}

// CastVotesBatch applies CastVote for each entry on behalf of a single
// voter. Entries for proposals the voter has already voted on are skipped
// without error. It returns the number of votes recorded
func (g *Governor) CastVotesBatch(
	ctx context.Context,
	voter string,
	entries []tally.BatchVoteEntry,
) (int, error) {
	cast := 0
	for _, entry := range entries {
		_, err := g.CastVote(
			ctx,
			entry.ProposalID,
			voter,
			entry.Support,
			entry.Reason,
		)
		if err != nil {
			var alreadyVotedErr *tally.AlreadyVotedError
			if errors.As(err, &alreadyVotedErr) {
				continue
			}
			return cast, err
		}
		cast++
	}
	return cast, nil
}

// FinalizeVoting evaluates a proposal once its voting window has closed.
// A defeated proposal goes terminal; a successful one is queued behind the
// timelock
func (g *Governor) FinalizeVoting(
	ctx context.Context,
	proposalID uint64,
) (tally.Outcome, error) {
	lock := g.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()
	if err := g.maybeActivate(proposalID); err != nil {
		return tally.OutcomeDefeated, err
	}
	proposal, err := g.registry.Get(proposalID)
	if err != nil {
		return tally.OutcomeDefeated, err
	}
	if proposal.State != registry.ProposalStateActive {
		return tally.OutcomeDefeated, &registry.InvalidTransitionError{
			ProposalID: proposalID,
			From:       proposal.State,
			To:         registry.ProposalStateSucceeded,
		}
	}
	outcome, err := g.tally.Evaluate(ctx, proposalID)
	if err != nil {
		return outcome, err
	}
	if outcome == tally.OutcomeDefeated {
		if err := g.registry.Transition(
			proposalID,
			registry.ProposalStateDefeated,
		); err != nil {
			return outcome, err
		}
		return outcome, nil
	}
	if err := g.registry.Transition(
		proposalID,
		registry.ProposalStateSucceeded,
	); err != nil {
		return outcome, err
	}
	if err := g.registry.Transition(
		proposalID,
		registry.ProposalStateQueued,
	); err != nil {
		return outcome, err
	}
	if err := g.timelock.Schedule(proposalID, g.config.timelockDelay); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// ExecuteProposal dispatches a queued proposal's actions once its timelock
// has elapsed, then marks it executed. Treasury actions are dispatched
// with the internal execution grant; nothing outside the Governor can
// trigger a treasury release
func (g *Governor) ExecuteProposal(
	ctx context.Context,
	proposalID uint64,
) error {
	lock := g.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()
	proposal, err := g.registry.Get(proposalID)
	if err != nil {
		return err
	}
	if proposal.State != registry.ProposalStateQueued {
		return &NotExecutableError{
			ProposalID: proposalID,
			State:      proposal.State.String(),
		}
	}
	if !g.timelock.IsReady(proposalID) {
		entry, err := g.timelock.Get(proposalID)
		if err != nil {
			return err
		}
		return &timelock.NotReadyError{
			ProposalID: proposalID,
			ReadyAt:    entry.ReadyAt,
		}
	}
	// Dispatch actions before flipping any terminal state so a failed
	// dispatch leaves the proposal queued and retryable
	for idx, action := range proposal.Actions {
		if err := g.dispatchAction(ctx, &proposal, idx, action); err != nil {
			return fmt.Errorf(
				"failed to dispatch action %d of proposal %d: %w",
				idx,
				proposalID,
				err,
			)
		}
	}
	if err := g.timelock.MarkExecuted(proposalID); err != nil {
		return err
	}
	if err := g.registry.Transition(
		proposalID,
		registry.ProposalStateExecuted,
	); err != nil {
		return err
	}
	g.executedCount.Add(1)
	g.metrics.proposalsExecuted.Inc()
	g.config.logger.Info(
		"executed proposal",
		"component", "governor",
		"proposal_id", proposalID,
		"actions", len(proposal.Actions),
	)
	return nil
}

func (g *Governor) dispatchAction(
	ctx context.Context,
	proposal *registry.Proposal,
	idx int,
	action registry.Action,
) error {
	if action.Target == "treasury" {
		return g.treasury.Release(ctx, g.execGrant, proposal.ID)
	}
	// Generic message action: record and surface, nothing to invoke
	g.config.logger.Info(
		"dispatched message action",
		"component", "governor",
		"proposal_id", proposal.ID,
		"action_index", idx,
		"target", action.Target,
		"value", action.Value,
	)
	g.eventBus.Publish(
		ActionDispatchedEventType,
		event.NewEvent(
			ActionDispatchedEventType,
			ActionDispatchedEvent{
				ProposalID: proposal.ID,
				Index:      idx,
				Target:     action.Target,
				Value:      action.Value,
			},
		),
	)
	return nil
}

// CancelProposal withdraws a proposal from any non-terminal state. Only
// the proposer or an allow-listed account may cancel
func (g *Governor) CancelProposal(proposalID uint64, caller string) error {
	lock := g.proposalLock(proposalID)
	lock.Lock()
	defer lock.Unlock()
	proposal, err := g.registry.Get(proposalID)
	if err != nil {
		return err
	}
	if caller != proposal.Proposer &&
		!slices.Contains(g.config.allowList, caller) {
		return &UnauthorizedError{
			Caller: caller,
			Reason: "only the proposer or an allow-listed account may cancel",
		}
	}
	if err := g.registry.Transition(
		proposalID,
		registry.ProposalStateCancelled,
	); err != nil {
		return err
	}
	if err := g.timelock.Cancel(proposalID); err != nil {
		var notFoundErr *timelock.NotFoundError
		if !errors.As(err, &notFoundErr) {
			return err
		}
	}
	return nil
}

// DepositTreasury credits the treasury balance
func (g *Governor) DepositTreasury(amount int64) error {
	return g.treasury.Deposit(amount)
}

// FundRewards credits the rewards pool
func (g *Governor) FundRewards(amount int64) error {
	return g.rewards.Fund(amount)
}

// DistributeRewards appends builder reward records. Restricted to
// allow-listed accounts
func (g *Governor) DistributeRewards(
	caller string,
	entries []rewards.DistributionEntry,
) error {
	if !slices.Contains(g.config.allowList, caller) {
		return &UnauthorizedError{
			Caller: caller,
			Reason: "reward distribution requires an allow-listed account",
		}
	}
	return g.rewards.Distribute(entries)
}

// UpdateContributionScore overwrites a builder's contribution score.
// Restricted to allow-listed accounts
func (g *Governor) UpdateContributionScore(
	caller string,
	builder string,
	newScore int64,
) error {
	if !slices.Contains(g.config.allowList, caller) {
		return &UnauthorizedError{
			Caller: caller,
			Reason: "score updates require an allow-listed account",
		}
	}
	return g.rewards.UpdateContributionScore(builder, newScore)
}

// ClaimReward pays out a distributed reward to its owning builder
func (g *Governor) ClaimReward(
	ctx context.Context,
	builder string,
	rewardIndex int,
) (int64, error) {
	return g.rewards.Claim(ctx, builder, rewardIndex)
}

// GetProposal returns a copy of the proposal with the given id
func (g *Governor) GetProposal(proposalID uint64) (registry.Proposal, error) {
	return g.registry.Get(proposalID)
}

// GetTally returns a snapshot of the running tally for a proposal
func (g *Governor) GetTally(proposalID uint64) tally.Tally {
	return g.tally.GetTally(proposalID)
}

// GetReward returns a copy of the reward record at the given index
func (g *Governor) GetReward(rewardIndex int) (rewards.Reward, error) {
	return g.rewards.GetReward(rewardIndex)
}

// GetAllocation returns a copy of the treasury allocation for a proposal
func (g *Governor) GetAllocation(
	proposalID uint64,
) (treasury.Allocation, error) {
	return g.treasury.GetAllocation(proposalID)
}

// TreasuryBalance returns the current treasury balance
func (g *Governor) TreasuryBalance() int64 {
	return g.treasury.Balance()
}

// EventBus returns the engine's event bus for lifecycle subscriptions
func (g *Governor) EventBus() *event.EventBus {
	return g.eventBus
}

// Stats returns a snapshot of engine counters
func (g *Governor) Stats() Stats {
	return Stats{
		TotalProposals:    g.registry.Len(),
		ActiveProposals:   len(g.registry.ListActive()),
		ExecutedProposals: g.executedCount.Load(),
		TreasuryBalance:   g.treasury.Balance(),
		RewardsPool:       g.rewards.Pool(),
	}
}

func (g *Governor) Stop() error {
	var err error
	g.shutdownOnce.Do(func() {
		err = g.shutdown()
	})
	return err
}

func (g *Governor) shutdown() error {
	shutdownTimeout := 30 * time.Second
	if g.config.shutdownTimeout > 0 {
		shutdownTimeout = g.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error
	g.config.logger.Debug("starting graceful shutdown")
	close(g.done)
	g.eventBus.Stop()
	for _, shutdownFunc := range g.shutdownFuncs {
		if shutdownErr := shutdownFunc(ctx); shutdownErr != nil {
			err = errors.Join(err, shutdownErr)
		}
	}
	if g.db != nil {
		if closeErr := g.db.Close(); closeErr != nil {
			err = errors.Join(
				err,
				fmt.Errorf("database close: %w", closeErr),
			)
		}
	}
	return err
}
