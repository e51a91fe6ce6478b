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

package tally

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/gavel/database"
	"github.com/blinklabs-io/gavel/database/models"
	"github.com/blinklabs-io/gavel/event"
	"github.com/blinklabs-io/gavel/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const VoteCastEventType event.EventType = "governance.vote_cast"

type VoteCastEvent struct {
	ProposalID uint64
	Voter      string
	Support    VoteSupport
	Weight     uint64
}

type VoteSupport uint8

const (
	VoteAgainst VoteSupport = iota
	VoteFor
	VoteAbstain
)

func (s VoteSupport) String() string {
	switch s {
	case VoteAgainst:
		return "against"
	case VoteFor:
		return "for"
	case VoteAbstain:
		return "abstain"
	default:
		return "unknown"
	}
}

// Oracle resolves eligible voting weight at a historical checkpoint.
// Results must be deterministic for a given (account, checkpoint) pair
type Oracle interface {
	WeightAt(
		ctx context.Context,
		account string,
		checkpoint time.Time,
	) (uint64, error)
	TotalWeightAt(ctx context.Context, checkpoint time.Time) (uint64, error)
}

// ProposalSource provides proposal lookups for vote gating
type ProposalSource interface {
	Get(proposalID uint64) (registry.Proposal, error)
}

type Vote struct {
	ProposalID uint64
	Voter      string
	Support    VoteSupport
	Weight     uint64
	Reason     string
	CastAt     time.Time
}

// Tally holds the running weight sums for one proposal
type Tally struct {
	ForWeight     uint64
	AgainstWeight uint64
	AbstainWeight uint64
}

// TotalWeight returns the total participating weight, counted toward quorum
func (t Tally) TotalWeight() uint64 {
	return t.ForWeight + t.AgainstWeight + t.AbstainWeight
}

type Outcome uint8

const (
	OutcomeDefeated Outcome = iota
	OutcomeSucceeded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDefeated:
		return "defeated"
	case OutcomeSucceeded:
		return "succeeded"
	default:
		return "unknown"
	}
}

type Config struct {
	Logger        *slog.Logger
	EventBus      *event.EventBus
	PromRegistry  prometheus.Registerer
	Database      *database.Database
	Oracle        Oracle
	Proposals     ProposalSource
	QuorumPercent uint
	OracleTimeout time.Duration
	Now           func() time.Time
}

// BatchVoteEntry is one entry of a multi-proposal vote submission
type BatchVoteEntry struct {
	ProposalID uint64
	Support    VoteSupport
	Reason     string
}

type Engine struct {
	config  Config
	metrics struct {
		votesCast  prometheus.Counter
		voteWeight prometheus.Counter
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	votes    map[uint64]map[string]*Vote
	tallies  map[uint64]*Tally
	sync.RWMutex
}

func New(config Config) (*Engine, error) {
	e := &Engine{
		config:   config,
		eventBus: config.EventBus,
		votes:    make(map[uint64]map[string]*Vote),
		tallies:  make(map[uint64]*Tally),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		e.logger = config.Logger
	}
	if e.config.Now == nil {
		e.config.Now = time.Now
	}
	if e.config.OracleTimeout == 0 {
		e.config.OracleTimeout = 5 * time.Second
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	e.metrics.votesCast = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_votes_cast_total",
			Help: "total votes recorded",
		},
	)
	e.metrics.voteWeight = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_vote_weight_total",
			Help: "total voting weight recorded",
		},
	)
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

// load restores votes from the metadata store and rebuilds running tallies
func (e *Engine) load() error {
	if e.config.Database == nil {
		return nil
	}
	rows, err := e.config.Database.GetAllVotes(nil)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	for _, row := range rows {
		vote := &Vote{
			ProposalID: row.ProposalID,
			Voter:      row.Voter,
			Support:    VoteSupport(row.Support),
			Weight:     row.Weight,
			Reason:     row.Reason,
			CastAt:     time.Unix(row.CastAt, 0),
		}
		if e.votes[vote.ProposalID] == nil {
			e.votes[vote.ProposalID] = make(map[string]*Vote)
		}
		e.votes[vote.ProposalID][vote.Voter] = vote
		e.applyToTally(vote)
	}
	if len(rows) > 0 {
		e.logger.Info(
			"restored votes",
			"component", "tally",
			"count", len(rows),
		)
	}
	return nil
}

// applyToTally adds a vote's weight to its proposal tally. Assumes the
// write lock is held (or exclusive access during load)
func (e *Engine) applyToTally(vote *Vote) {
	tally := e.tallies[vote.ProposalID]
	if tally == nil {
		tally = &Tally{}
		e.tallies[vote.ProposalID] = tally
	}
	switch vote.Support {
	case VoteFor:
		tally.ForWeight += vote.Weight
	case VoteAgainst:
		tally.AgainstWeight += vote.Weight
	case VoteAbstain:
		tally.AbstainWeight += vote.Weight
	}
}

func (e *Engine) oracleContext(
	ctx context.Context,
) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.OracleTimeout)
}

// CastVote records a vote and returns the weight assigned to it. The
// voter's weight is resolved at the proposal's voting start checkpoint,
// never at the current time
func (e *Engine) CastVote(
	ctx context.Context,
	proposalID uint64,
	voter string,
	support VoteSupport,
	reason string,
) (uint64, error) {
	proposal, err := e.config.Proposals.Get(proposalID)
	if err != nil {
		return 0, err
	}
	now := e.config.Now()
	if proposal.State != registry.ProposalStateActive ||
		now.Before(proposal.VotingStart) ||
		!now.Before(proposal.VotingEnd) {
		return 0, &ProposalNotActiveError{
			ProposalID: proposalID,
			State:      proposal.State.String(),
		}
	}
	// Cheap duplicate check before the oracle round trip. The
	// authoritative check happens again under the write lock
	e.RLock()
	_, voted := e.votes[proposalID][voter]
	e.RUnlock()
	if voted {
		return 0, &AlreadyVotedError{ProposalID: proposalID, Voter: voter}
	}
	oracleCtx, cancel := e.oracleContext(ctx)
	defer cancel()
	weight, err := e.config.Oracle.WeightAt(
		oracleCtx,
		voter,
		proposal.VotingStart,
	)
	if err != nil {
		return 0, &OracleError{Err: err}
	}
	vote := &Vote{
		ProposalID: proposalID,
		Voter:      voter,
		Support:    support,
		Weight:     weight,
		Reason:     reason,
		CastAt:     now,
	}
	e.Lock()
	defer e.Unlock()
	if _, voted := e.votes[proposalID][voter]; voted {
		return 0, &AlreadyVotedError{ProposalID: proposalID, Voter: voter}
	}
	if e.config.Database != nil {
		row := &models.Vote{
			ProposalID: vote.ProposalID,
			Voter:      vote.Voter,
			Support:    uint8(vote.Support),
			Weight:     vote.Weight,
			Reason:     vote.Reason,
			CastAt:     vote.CastAt.Unix(),
		}
		if err := e.config.Database.SetVote(row, nil); err != nil {
			return 0, fmt.Errorf("failed to persist vote: %w", err)
		}
	}
	if e.votes[proposalID] == nil {
		e.votes[proposalID] = make(map[string]*Vote)
	}
	e.votes[proposalID][voter] = vote
	e.applyToTally(vote)
	e.metrics.votesCast.Inc()
	e.metrics.voteWeight.Add(float64(weight))
	e.logger.Info(
		"vote cast",
		"component", "tally",
		"proposal_id", proposalID,
		"voter", voter,
		"support", support.String(),
		"weight", weight,
	)
	if e.eventBus != nil {
		e.eventBus.Publish(
			VoteCastEventType,
			event.NewEvent(
				VoteCastEventType,
				VoteCastEvent{
					ProposalID: proposalID,
					Voter:      voter,
					Support:    support,
					Weight:     weight,
				},
			),
		)
	}
	return weight, nil
}

// CastVotesBatch applies CastVote for each entry on behalf of a single
// voter. Entries for proposals the voter has already voted on are skipped
// without error. It returns the number of votes recorded
func (e *Engine) CastVotesBatch(
	ctx context.Context,
	voter string,
	entries []BatchVoteEntry,
) (int, error) {
	cast := 0
	for _, entry := range entries {
		_, err := e.CastVote(
			ctx,
			entry.ProposalID,
			voter,
			entry.Support,
			entry.Reason,
		)
		if err != nil {
			var alreadyVotedErr *AlreadyVotedError
			if errors.As(err, &alreadyVotedErr) {
				continue
			}
			return cast, err
		}
		cast++
	}
	return cast, nil
}

// Evaluate determines the voting outcome of a proposal. It fails while the
// voting window is open and is deterministic and idempotent afterward.
// Success requires quorum participation and a strict for-over-against
// majority; abstentions count toward quorum only
func (e *Engine) Evaluate(
	ctx context.Context,
	proposalID uint64,
) (Outcome, error) {
	proposal, err := e.config.Proposals.Get(proposalID)
	if err != nil {
		return OutcomeDefeated, err
	}
	if e.config.Now().Before(proposal.VotingEnd) {
		return OutcomeDefeated, &VotingStillOpenError{
			ProposalID: proposalID,
			VotingEnd:  proposal.VotingEnd,
		}
	}
	oracleCtx, cancel := e.oracleContext(ctx)
	defer cancel()
	totalWeight, err := e.config.Oracle.TotalWeightAt(
		oracleCtx,
		proposal.VotingStart,
	)
	if err != nil {
		return OutcomeDefeated, &OracleError{Err: err}
	}
	quorum := totalWeight * uint64(e.config.QuorumPercent) / 100
	tally := e.GetTally(proposalID)
	if tally.TotalWeight() < quorum {
		return OutcomeDefeated, nil
	}
	if tally.ForWeight > tally.AgainstWeight {
		return OutcomeSucceeded, nil
	}
	return OutcomeDefeated, nil
}

// GetTally returns a snapshot of the running tally for a proposal
func (e *Engine) GetTally(proposalID uint64) Tally {
	e.RLock()
	defer e.RUnlock()
	tally := e.tallies[proposalID]
	if tally == nil {
		return Tally{}
	}
	return *tally
}

// GetVote returns the recorded vote for a (proposal, voter) pair
func (e *Engine) GetVote(proposalID uint64, voter string) (Vote, bool) {
	e.RLock()
	defer e.RUnlock()
	vote, ok := e.votes[proposalID][voter]
	if !ok {
		return Vote{}, false
	}
	return *vote, true
}

// VoteCount returns the number of votes recorded for a proposal
func (e *Engine) VoteCount(proposalID uint64) int {
	e.RLock()
	defer e.RUnlock()
	return len(e.votes[proposalID])
}
