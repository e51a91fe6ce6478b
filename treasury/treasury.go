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

package treasury

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
	DepositEventType   event.EventType = "treasury.deposit"
	AllocatedEventType event.EventType = "treasury.allocated"
	ReleasedEventType  event.EventType = "treasury.released"
)

type DepositEvent struct {
	Amount  int64
	Balance int64
}

type AllocatedEvent struct {
	ProposalID uint64
	Recipient  string
	Amount     int64
}

type ReleasedEvent struct {
	ProposalID uint64
	Recipient  string
	Amount     int64
}

// FundsTransferrer is the external custody collaborator that moves funds
// to a recipient. Transfers are fallible and must not be silently retried
type FundsTransferrer interface {
	Transfer(ctx context.Context, recipient string, amount int64) error
}

// ExecGrant authorizes treasury releases. The only valid grant is the one
// returned by New; callers holding a zero or copied-from-elsewhere grant
// are rejected
type ExecGrant struct {
	ledger *Ledger
}

// Allocation earmarks treasury funds for a recipient. The balance is not
// debited until release, so cancelled allocations never need a refund
type Allocation struct {
	ProposalID  uint64
	Recipient   string
	Amount      int64
	Purpose     string
	ReleaseTime time.Time
	Released    bool
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
		balance  prometheus.Gauge
		released prometheus.Counter
	}
	logger      *slog.Logger
	eventBus    *event.EventBus
	balance     int64
	allocations map[uint64]*Allocation
	sync.Mutex
}

func New(config Config) (*Ledger, ExecGrant, error) {
	l := &Ledger{
		config:      config,
		eventBus:    config.EventBus,
		allocations: make(map[uint64]*Allocation),
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
	l.metrics.balance = promautoFactory.NewGauge(
		prometheus.GaugeOpts{
			Name: "gavel_treasury_balance",
			Help: "current treasury balance",
		},
	)
	l.metrics.released = promautoFactory.NewCounter(
		prometheus.CounterOpts{
			Name: "gavel_treasury_released_total",
			Help: "total amount released from the treasury",
		},
	)
	if err := l.load(); err != nil {
		return nil, ExecGrant{}, err
	}
	return l, ExecGrant{ledger: l}, nil
}

func (l *Ledger) load() error {
	if l.config.Database == nil {
		return nil
	}
	balance, err := l.config.Database.GetTreasuryBalance(nil)
	if err != nil {
		return fmt.Errorf("failed to load treasury balance: %w", err)
	}
	l.balance = balance
	l.metrics.balance.Set(float64(balance))
	rows, err := l.config.Database.GetAllocations(nil)
	if err != nil {
		return fmt.Errorf("failed to load allocations: %w", err)
	}
	for _, row := range rows {
		l.allocations[row.ProposalID] = &Allocation{
			ProposalID:  row.ProposalID,
			Recipient:   row.Recipient,
			Amount:      row.Amount,
			Purpose:     row.Purpose,
			ReleaseTime: time.Unix(row.ReleaseTime, 0),
			Released:    row.Released,
		}
	}
	return nil
}

func (l *Ledger) persistBalance(txn *database.Txn) error {
	if l.config.Database == nil {
		return nil
	}
	return l.config.Database.SetTreasuryBalance(l.balance, txn)
}

func (l *Ledger) persistAllocation(
	allocation *Allocation,
	txn *database.Txn,
) error {
	if l.config.Database == nil {
		return nil
	}
	row := &models.TreasuryAllocation{
		ProposalID:  allocation.ProposalID,
		Recipient:   allocation.Recipient,
		Amount:      allocation.Amount,
		Purpose:     allocation.Purpose,
		ReleaseTime: allocation.ReleaseTime.Unix(),
		Released:    allocation.Released,
	}
	return l.config.Database.SetAllocation(row, txn)
}

// Deposit credits the treasury balance
func (l *Ledger) Deposit(amount int64) error {
	if amount <= 0 {
		return &ValidationError{
			Field:  "amount",
			Reason: "must be positive",
		}
	}
	l.Lock()
	defer l.Unlock()
	oldBalance := l.balance
	l.balance += amount
	if err := l.persistBalance(nil); err != nil {
		l.balance = oldBalance
		return err
	}
	l.metrics.balance.Set(float64(l.balance))
	l.logger.Info(
		"treasury deposit",
		"component", "treasury",
		"amount", amount,
		"balance", l.balance,
	)
	if l.eventBus != nil {
		l.eventBus.Publish(
			DepositEventType,
			event.NewEvent(
				DepositEventType,
				DepositEvent{Amount: amount, Balance: l.balance},
			),
		)
	}
	return nil
}

// Allocate earmarks funds for a proposal. The allocation must fit in the
// current balance but the balance is only debited at release time
func (l *Ledger) Allocate(
	proposalID uint64,
	recipient string,
	amount int64,
	purpose string,
	releaseTime time.Time,
) error {
	if recipient == "" {
		return &ValidationError{
			Field:  "recipient",
			Reason: "cannot be empty",
		}
	}
	if amount <= 0 {
		return &ValidationError{
			Field:  "amount",
			Reason: "must be positive",
		}
	}
	if !releaseTime.After(l.config.Now()) {
		return &ValidationError{
			Field:  "releaseTime",
			Reason: "must be in the future",
		}
	}
	l.Lock()
	defer l.Unlock()
	if _, ok := l.allocations[proposalID]; ok {
		return &ValidationError{
			Field:  "proposalId",
			Reason: "allocation already exists",
		}
	}
	if amount > l.balance {
		return &InsufficientFundsError{
			Requested: amount,
			Available: l.balance,
		}
	}
	allocation := &Allocation{
		ProposalID:  proposalID,
		Recipient:   recipient,
		Amount:      amount,
		Purpose:     purpose,
		ReleaseTime: releaseTime,
	}
	if err := l.persistAllocation(allocation, nil); err != nil {
		return err
	}
	l.allocations[proposalID] = allocation
	l.logger.Info(
		"treasury allocation recorded",
		"component", "treasury",
		"proposal_id", proposalID,
		"recipient", recipient,
		"amount", amount,
	)
	if l.eventBus != nil {
		l.eventBus.Publish(
			AllocatedEventType,
			event.NewEvent(
				AllocatedEventType,
				AllocatedEvent{
					ProposalID: proposalID,
					Recipient:  recipient,
					Amount:     amount,
				},
			),
		)
	}
	return nil
}

// Release debits the balance, marks the allocation released and hands the
// funds to the custody collaborator. The ledger mutation commits before the
// custody call; a failed transfer rolls the release back and resurfaces the
// failure so the caller can retry from a clean state
func (l *Ledger) Release(
	ctx context.Context,
	grant ExecGrant,
	proposalID uint64,
) error {
	if grant.ledger != l {
		return &UnauthorizedError{
			Reason: "treasury release requires the governance execution grant",
		}
	}
	l.Lock()
	allocation, ok := l.allocations[proposalID]
	if !ok {
		l.Unlock()
		return &NotFoundError{ProposalID: proposalID}
	}
	if allocation.Released || l.config.Now().Before(allocation.ReleaseTime) {
		err := &NotYetReleasableError{
			ProposalID:  proposalID,
			ReleaseTime: allocation.ReleaseTime,
			Released:    allocation.Released,
		}
		l.Unlock()
		return err
	}
	if allocation.Amount > l.balance {
		err := &InsufficientFundsError{
			Requested: allocation.Amount,
			Available: l.balance,
		}
		l.Unlock()
		return err
	}
	// Commit the debit and the released flag as one unit before touching
	// the external collaborator
	allocation.Released = true
	l.balance -= allocation.Amount
	err := l.persistRelease(allocation)
	if err != nil {
		allocation.Released = false
		l.balance += allocation.Amount
		l.Unlock()
		return err
	}
	l.metrics.balance.Set(float64(l.balance))
	recipient := allocation.Recipient
	amount := allocation.Amount
	l.Unlock()

	transferCtx, cancel := context.WithTimeout(ctx, l.config.TransferTimeout)
	defer cancel()
	if err := l.config.Custody.Transfer(transferCtx, recipient, amount); err != nil {
		// Roll the release back so a retry starts clean
		l.Lock()
		allocation.Released = false
		l.balance += amount
		if persistErr := l.persistRelease(allocation); persistErr != nil {
			l.logger.Error(
				"failed to persist release rollback",
				"component", "treasury",
				"proposal_id", proposalID,
				"error", persistErr,
			)
		}
		l.metrics.balance.Set(float64(l.balance))
		l.Unlock()
		return &TransferError{
			Recipient: recipient,
			Amount:    amount,
			Err:       err,
		}
	}
	l.metrics.released.Add(float64(amount))
	l.logger.Info(
		"treasury allocation released",
		"component", "treasury",
		"proposal_id", proposalID,
		"recipient", recipient,
		"amount", amount,
	)
	if l.eventBus != nil {
		l.eventBus.Publish(
			ReleasedEventType,
			event.NewEvent(
				ReleasedEventType,
				ReleasedEvent{
					ProposalID: proposalID,
					Recipient:  recipient,
					Amount:     amount,
				},
			),
		)
	}
	return nil
}

// persistRelease writes the allocation and balance in one transaction.
// Assumes the lock is held
func (l *Ledger) persistRelease(allocation *Allocation) error {
	if l.config.Database == nil {
		return nil
	}
	txn := l.config.Database.Transaction(true)
	err := txn.Do(func(txn *database.Txn) error {
		if err := l.persistAllocation(allocation, txn); err != nil {
			return err
		}
		return l.persistBalance(txn)
	})
	if err != nil {
		return fmt.Errorf("failed to persist release: %w", err)
	}
	return nil
}

// Balance returns the current treasury balance
func (l *Ledger) Balance() int64 {
	l.Lock()
	defer l.Unlock()
	return l.balance
}

// GetAllocation returns a copy of the allocation for a proposal
func (l *Ledger) GetAllocation(proposalID uint64) (Allocation, error) {
	l.Lock()
	defer l.Unlock()
	allocation, ok := l.allocations[proposalID]
	if !ok {
		return Allocation{}, &NotFoundError{ProposalID: proposalID}
	}
	return *allocation, nil
}
