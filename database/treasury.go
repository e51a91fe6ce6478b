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

package database

import (
	"errors"
	"fmt"

	"github.com/blinklabs-io/gavel/database/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SetTreasuryBalance persists the treasury balance pool
func (d *Database) SetTreasuryBalance(balance int64, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	state := models.TreasuryState{ID: 1, Balance: balance}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&state).Error; err != nil {
		return fmt.Errorf("failed to set treasury balance: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit treasury balance: %w", err)
		}
	}
	return nil
}

// GetTreasuryBalance returns the persisted treasury balance, or zero when
// no state has been recorded yet
func (d *Database) GetTreasuryBalance(txn *Txn) (int64, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var state models.TreasuryState
	result := txn.Metadata().First(&state, "id = ?", 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf(
			"failed to get treasury balance: %w",
			result.Error,
		)
	}
	return state.Balance, nil
}

// SetAllocation creates or updates a treasury allocation
func (d *Database) SetAllocation(
	allocation *models.TreasuryAllocation,
	txn *Txn,
) error {
	if allocation == nil {
		return errors.New("allocation cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(allocation).Error; err != nil {
		return fmt.Errorf("failed to set allocation: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit allocation: %w", err)
		}
	}
	return nil
}

// GetAllocation returns the treasury allocation for a proposal
func (d *Database) GetAllocation(
	proposalID uint64,
	txn *Txn,
) (*models.TreasuryAllocation, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var allocation models.TreasuryAllocation
	result := txn.Metadata().First(&allocation, "proposal_id = ?", proposalID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrAllocationNotFound
		}
		return nil, fmt.Errorf("failed to get allocation: %w", result.Error)
	}
	return &allocation, nil
}

// GetAllocations returns all treasury allocations
func (d *Database) GetAllocations(
	txn *Txn,
) ([]*models.TreasuryAllocation, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var allocations []*models.TreasuryAllocation
	result := txn.Metadata().Order("proposal_id").Find(&allocations)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"failed to get allocations: %w",
			result.Error,
		)
	}
	return allocations, nil
}
