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

// SetRewardsPool persists the rewards pool balance
func (d *Database) SetRewardsPool(pool int64, txn *Txn) error {
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	state := models.RewardsState{ID: 1, Pool: pool}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&state).Error; err != nil {
		return fmt.Errorf("failed to set rewards pool: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit rewards pool: %w", err)
		}
	}
	return nil
}

// GetRewardsPool returns the persisted rewards pool balance, or zero when
// no state has been recorded yet
func (d *Database) GetRewardsPool(txn *Txn) (int64, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var state models.RewardsState
	result := txn.Metadata().First(&state, "id = ?", 1)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get rewards pool: %w", result.Error)
	}
	return state.Pool, nil
}

// SetReward creates or updates a builder reward record
func (d *Database) SetReward(
	reward *models.BuilderReward,
	txn *Txn,
) error {
	if reward == nil {
		return errors.New("reward cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idx"}},
			UpdateAll: true,
		}).
		Create(reward).Error; err != nil {
		return fmt.Errorf("failed to set reward: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit reward: %w", err)
		}
	}
	return nil
}

// GetRewards returns all builder rewards ordered by global index
func (d *Database) GetRewards(txn *Txn) ([]*models.BuilderReward, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var rewards []*models.BuilderReward
	result := txn.Metadata().Order("idx").Find(&rewards)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get rewards: %w", result.Error)
	}
	return rewards, nil
}

// SetContributionScore creates or updates a builder contribution score
func (d *Database) SetContributionScore(
	score *models.ContributionScore,
	txn *Txn,
) error {
	if score == nil {
		return errors.New("score cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(score).Error; err != nil {
		return fmt.Errorf("failed to set contribution score: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit contribution score: %w", err)
		}
	}
	return nil
}

// GetContributionScores returns all recorded contribution scores
func (d *Database) GetContributionScores(
	txn *Txn,
) ([]*models.ContributionScore, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var scores []*models.ContributionScore
	result := txn.Metadata().Order("builder").Find(&scores)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"failed to get contribution scores: %w",
			result.Error,
		)
	}
	return scores, nil
}
