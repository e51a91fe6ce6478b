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

// SetTimelockEntry creates or updates a timelock entry
func (d *Database) SetTimelockEntry(
	entry *models.TimelockEntry,
	txn *Txn,
) error {
	if entry == nil {
		return errors.New("timelock entry cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entry).Error; err != nil {
		return fmt.Errorf("failed to set timelock entry: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit timelock entry: %w", err)
		}
	}
	return nil
}

// GetTimelockEntries returns all timelock entries
func (d *Database) GetTimelockEntries(
	txn *Txn,
) ([]*models.TimelockEntry, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var entries []*models.TimelockEntry
	result := txn.Metadata().Order("proposal_id").Find(&entries)
	if result.Error != nil {
		return nil, fmt.Errorf(
			"failed to get timelock entries: %w",
			result.Error,
		)
	}
	return entries, nil
}
