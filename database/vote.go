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
	"gorm.io/gorm/clause"
)

// SetVote records a vote on a proposal
func (d *Database) SetVote(
	vote *models.Vote,
	txn *Txn,
) error {
	if vote == nil {
		return errors.New("vote cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "proposal_id"}, {Name: "voter"}},
			UpdateAll: true,
		}).
		Create(vote).Error; err != nil {
		return fmt.Errorf("failed to set vote: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit vote: %w", err)
		}
	}
	return nil
}

// GetVotes returns all votes for a proposal
func (d *Database) GetVotes(
	proposalID uint64,
	txn *Txn,
) ([]*models.Vote, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var votes []*models.Vote
	result := txn.Metadata().
		Where("proposal_id = ?", proposalID).
		Order("id").
		Find(&votes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get votes: %w", result.Error)
	}
	return votes, nil
}

// GetAllVotes returns every recorded vote ordered by insertion
func (d *Database) GetAllVotes(txn *Txn) ([]*models.Vote, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var votes []*models.Vote
	result := txn.Metadata().Order("id").Find(&votes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get votes: %w", result.Error)
	}
	return votes, nil
}
