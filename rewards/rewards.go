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

package rewards

import (
	"context"
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
	DistributedEventType event.EventType = "rewards.distributed"
	ClaimedEventType     event.EventType = "rewards.claimed"
)

type DistributedEvent struct {
	Count int
	Total int64
}

type ClaimedEvent struct {
	Index   int
	Builder string
	Payout  int64
}

// FundsTransferrer is the external custody collaborator that pays out
// claimed rewards
type FundsTransferrer interface {
	Transfer(ctx context.Context, recipient string, amount int64) error
}

// Reward is one distributed builder reward. The multiplier is frozen at
// distribution time; later contribution score changes do not affect it
type Reward struct {
	Index        int
	Builder      string
	Amount       int64
	Contribution string
	Multiplier   int64
	Claimed      bool
	CreatedAt    time.Time
}

// Payout returns the claimable amount, truncated toward zero
func (r Reward) Payout() int64 {
	return r.Amount * r.Multiplier / 100
}

// DistributionEntry is one entry of a reward distribution batch
type DistributionEntry struct {
	Builder      string
	Amount       int64
	Contribution string
}

// multiplierFor maps a contribution score to a percentage multiplier
func multiplierFor(score int64) int64 {
	switch {
	case score >= 10000:
		return 200
	case score >= 5000:
		return 150
	case score >= 1000:
		return 125
	default:
		return 100
	}
}

type Config struct {
	Logger          *slog.Logger
	EventBus        *event.EventBus
	PromRegistry    prometheus.Registerer
	Database        *database.Database
	Custody         FundsTransferrer
	TransferTimeout time.Duration
	Now             func() time.Time
}

type Ledger struct {
	config  Config
	metrics struct {
		pool        prometheus.Gauge
		distributed prometheus.Counter
		claimed     prometheus.Counter
	}
	logger   *slog.Logger
	eventBus *event.EventBus
	pool     int64
	rewards  []*Reward
	scores   map[string]int64
	sync.Mutex
}

func New(config Config) (*Ledger, error) {
	l := &Ledger{
		config:   config,
		eventBus: config.EventBus,
		scores:   make(map[string]int64),
	}
	if config.Logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		l.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	} else {
		l.logger = config.Logger
	}
	if l.config.Now == nil {
		l.config.Now = time.Now
	}
	if l.config.TransferTimeout == 0 {
		l.config.TransferTimeout = 10 * time.Second
	}
	// Init metrics
	promautoFactory := promauto.With(config.PromRegistry)
	l.metrics.pool = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "gavel_rewards_pool",
			Help: "current rewards pool balance",
		},
	)
	l.metrics.distributed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_rewards_distributed_total",
			Help: "total amount distributed as builder rewards",
		},
	)
	l.metrics.claimed = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_rewards_claimed_total",
			Help: "total amount paid out for claimed rewards",
		},
	)
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) load() error {
	if l.config.Database == nil {
		return nil
	}
	pool, err := l.config.Database.GetRewardsPool(nil)
	if err != nil {
		return fmt.Errorf("failed to load rewards pool: %w", err)
	}
	l.pool = pool
	l.metrics.pool.Set(float64(pool))
	rows, err := l.config.Database.GetRewards(nil)
	if err != nil {
		return fmt.Errorf("failed to load rewards: %w", err)
	}
	for _, row := range rows {
		l.rewards = append(l.rewards, &Reward{
			Index:        row.Idx,
			Builder:      row.Builder,
			Amount:       row.Amount,
			Contribution: row.Contribution,
			Multiplier:   row.Multiplier,
			Claimed:      row.Claimed,
			CreatedAt:    time.Unix(row.CreatedAt, 0),
		})
	}
	scoreRows, err := l.config.Database.GetContributionScores(nil)
	if err != nil {
		return fmt.Errorf("failed to load contribution scores: %w", err)
	}
	for _, row := range scoreRows {
		l.scores[row.Builder] = row.Score
	}
	return nil
}

func (l *Ledger) persistReward(reward *Reward, txn *database.Txn) error {
	if l.config.Database == nil {
		return nil
	}
	row := &models.BuilderReward{
		Idx:          reward.Index,
		Builder:      reward.Builder,
		Amount:       reward.Amount,
		Contribution: reward.Contribution,
		Multiplier:   reward.Multiplier,
		Claimed:      reward.Claimed,
		CreatedAt:    reward.CreatedAt.Unix(),
	}
	return l.config.Database.SetReward(row, txn)
}

func (l *Ledger) persistPool(txn *database.Txn) error {
	if l.config.Database == nil {
		return nil
	}
	return l.config.Database.SetRewardsPool(l.pool, txn)
}

// Fund credits the rewards pool
func (l *Ledger) Fund(amount int64) error {
	if amount <= 0 {
		return &ValidationError{
			Field:  "amount",
			Reason: "must be positive",
		}
	}
	l.Lock()
	defer l.Unlock()
	oldPool := l.pool
	l.pool += amount
	if err := l.persistPool(nil); err != nil {
		l.pool = oldPool
		return err
	}
	l.metrics.pool.Set(float64(l.pool))
	l.logger.Info(
		"rewards pool funded",
		"component", "rewards",
		"amount", amount,
		"pool", l.pool,
	)
	return nil
}

// Distribute appends a reward record per entry and debits the pool. The
// whole batch is checked against the pool up front; if it does not fit,
// nothing is recorded. Each entry's multiplier is frozen from the
// builder's contribution score at this moment
func (l *Ledger) Distribute(entries []DistributionEntry) error {
	if len(entries) == 0 {
		return &ValidationError{
			Field:  "entries",
			Reason: "cannot be empty",
		}
	}
	var total int64
	for _, entry := range entries {
		if entry.Builder == "" {
			return &ValidationError{
				Field:  "builder",
				Reason: "cannot be empty",
			}
		}
		if entry.Amount <= 0 {
			return &ValidationError{
				Field:  "amount",
				Reason: "must be positive",
			}
		}
		total += entry.Amount
	}
	l.Lock()
	defer l.Unlock()
	if total > l.pool {
		return &InsufficientFundsError{
			Requested: total,
			Available: l.pool,
		}
	}
	now := l.config.Now()
	newRewards := make([]*Reward, len(entries))
	for i, entry := range entries {
		newRewards[i] = &Reward{
			Index:        len(l.rewards) + i,
			Builder:      entry.Builder,
			Amount:       entry.Amount,
			Contribution: entry.Contribution,
			Multiplier:   multiplierFor(l.scores[entry.Builder]),
			CreatedAt:    now,
		}
	}
	oldPool := l.pool
	l.pool -= total
	if l.config.Database != nil {
		txn := l.config.Database.Transaction(true)
		err := txn.Do(func(txn *database.Txn) error {
			for _, reward := range newRewards {
				if err := l.persistReward(reward, txn); err != nil {
					return err
				}
			}
			return l.persistPool(txn)
		})
		if err != nil {
			l.pool = oldPool
			return fmt.Errorf("failed to persist distribution: %w", err)
		}
	}
	l.rewards = append(l.rewards, newRewards...)
	l.metrics.pool.Set(float64(l.pool))
	l.metrics.distributed.Add(float64(total))
	l.logger.Info(
		"distributed builder rewards",
		"component", "rewards",
		"count", len(entries),
		"total", total,
		"pool", l.pool,
	)
	if l.eventBus != nil {
		l.eventBus.Publish(
			DistributedEventType,
			event.NewEvent(
				DistributedEventType,
				DistributedEvent{Count: len(entries), Total: total},
			),
		)
	}
	return nil
}

// Claim pays out a reward to its owning builder. The claimed flag commits
// before the custody call; a failed transfer rolls the claim back and
// resurfaces the failure so the builder can retry
func (l *Ledger) Claim(
	ctx context.Context,
	builder string,
	rewardIndex int,
) (int64, error) {
	l.Lock()
	if rewardIndex < 0 || rewardIndex >= len(l.rewards) {
		l.Unlock()
		return 0, &NotFoundError{Index: rewardIndex}
	}
	reward := l.rewards[rewardIndex]
	if reward.Builder != builder {
		err := &NotOwnerError{
			Index:   rewardIndex,
			Claimer: builder,
			Owner:   reward.Builder,
		}
		l.Unlock()
		return 0, err
	}
	if reward.Claimed {
		l.Unlock()
		return 0, &AlreadyClaimedError{Index: rewardIndex}
	}
	// Commit the claimed flag before touching the external collaborator
	reward.Claimed = true
	if err := l.persistReward(reward, nil); err != nil {
		reward.Claimed = false
		l.Unlock()
		return 0, fmt.Errorf("failed to persist claim: %w", err)
	}
	payout := reward.Payout()
	l.Unlock()

	transferCtx, cancel := context.WithTimeout(ctx, l.config.TransferTimeout)
	defer cancel()
	if err := l.config.Custody.Transfer(transferCtx, builder, payout); err != nil {
		// Roll the claim back so a retry starts clean
		l.Lock()
		reward.Claimed = false
		if persistErr := l.persistReward(reward, nil); persistErr != nil {
			l.logger.Error(
				"failed to persist claim rollback",
				"component", "rewards",
				"reward_index", rewardIndex,
				"error", persistErr,
			)
		}
		l.Unlock()
		return 0, &TransferError{
			Recipient: builder,
			Amount:    payout,
			Err:       err,
		}
	}
	l.metrics.claimed.Add(float64(payout))
	l.logger.Info(
		"reward claimed",
		"component", "rewards",
		"reward_index", rewardIndex,
		"builder", builder,
		"payout", payout,
	)
	if l.eventBus != nil {
		l.eventBus.Publish(
			ClaimedEventType,
			event.NewEvent(
				ClaimedEventType,
				ClaimedEvent{
					Index:   rewardIndex,
					Builder: builder,
					Payout:  payout,
				},
			),
		)
	}
	return payout, nil
}

// UpdateContributionScore overwrites a builder's contribution score. No
// monotonicity is enforced; governance is trusted to only raise scores
func (l *Ledger) UpdateContributionScore(
	builder string,
	newScore int64,
) error {
	if builder == "" {
		return &ValidationError{
			Field:  "builder",
			Reason: "cannot be empty",
		}
	}
	l.Lock()
	defer l.Unlock()
	if l.config.Database != nil {
		row := &models.ContributionScore{
			Builder: builder,
			Score:   newScore,
		}
		if err := l.config.Database.SetContributionScore(row, nil); err != nil {
			return fmt.Errorf(
				"failed to persist contribution score: %w",
				err,
			)
		}
	}
	l.scores[builder] = newScore
	return nil
}

// ContributionScore returns a builder's current contribution score
func (l *Ledger) ContributionScore(builder string) int64 {
	l.Lock()
	defer l.Unlock()
	return l.scores[builder]
}

// Pool returns the current rewards pool balance
func (l *Ledger) Pool() int64 {
	l.Lock()
	defer l.Unlock()
	return l.pool
}

// GetReward returns a copy of the reward record at the given index
func (l *Ledger) GetReward(rewardIndex int) (Reward, error) {
	l.Lock()
	defer l.Unlock()
	if rewardIndex < 0 || rewardIndex >= len(l.rewards) {
		return Reward{}, &NotFoundError{Index: rewardIndex}
	}
	return *l.rewards[rewardIndex], nil
}

// RewardCount returns the number of distributed reward records
func (l *Ledger) RewardCount() int {
	l.Lock()
	defer l.Unlock()
	return len(l.rewards)
}
