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
	badger "github.com/dgraph-io/badger/v4"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func actionPayloadKey(proposalID uint64, idx int) []byte {
	return fmt.Appendf(nil, "proposal/%d/action/%d", proposalID, idx)
}

// SetProposal creates or updates a proposal record
func (d *Database) SetProposal(
	proposal *models.Proposal,
	txn *Txn,
) error {
	if proposal == nil {
		return errors.New("proposal cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(proposal).Error; err != nil {
		return fmt.Errorf("failed to set proposal: %w", err)
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit proposal: %w", err)
		}
	}
	return nil
}

// GetProposal returns a proposal by its id
func (d *Database) GetProposal(
	proposalID uint64,
	txn *Txn,
) (*models.Proposal, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var proposal models.Proposal
	result := txn.Metadata().First(&proposal, "id = ?", proposalID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, models.ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", result.Error)
	}
	return &proposal, nil
}

// GetProposals returns all proposal records ordered by id
func (d *Database) GetProposals(txn *Txn) ([]*models.Proposal, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var proposals []*models.Proposal
	result := txn.Metadata().Order("id").Find(&proposals)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to get proposals: %w", result.Error)
	}
	return proposals, nil
}

// SetProposalAction records one proposal action. The structured fields go
// to the metadata store and the opaque payload to the blob store.
func (d *Database) SetProposalAction(
	action *models.ProposalAction,
	payload []byte,
	txn *Txn,
) error {
	if action == nil {
		return errors.New("action cannot be nil")
	}
	owned := false
	if txn == nil {
		txn = d.Transaction(true)
		owned = true
		defer txn.Release()
	}
	if err := txn.Metadata().
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(action).Error; err != nil {
		return fmt.Errorf("failed to set proposal action: %w", err)
	}
	if len(payload) > 0 {
		key := actionPayloadKey(action.ProposalID, action.Idx)
		if err := txn.Blob().Set(key, payload); err != nil {
			return fmt.Errorf("failed to set action payload: %w", err)
		}
	}
	if owned {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("failed to commit proposal action: %w", err)
		}
	}
	return nil
}

// GetProposalActions returns the actions of a proposal in index order,
// along with their opaque payloads
func (d *Database) GetProposalActions(
	proposalID uint64,
	txn *Txn,
) ([]*models.ProposalAction, [][]byte, error) {
	if txn == nil {
		txn = d.Transaction(false)
		defer txn.Release()
	}
	var actions []*models.ProposalAction
	result := txn.Metadata().
		Where("proposal_id = ?", proposalID).
		Order("idx").
		Find(&actions)
	if result.Error != nil {
		return nil, nil, fmt.Errorf(
			"failed to get proposal actions: %w",
			result.Error,
		)
	}
	payloads := make([][]byte, len(actions))
	for i, action := range actions {
		item, err := txn.Blob().Get(actionPayloadKey(proposalID, action.Idx))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			return nil, nil, fmt.Errorf(
				"failed to get action payload: %w",
				err,
			)
		}
		payloads[i], err = item.ValueCopy(nil)
		if err != nil {
			return nil, nil, fmt.Errorf(
				"failed to read action payload: %w",
				err,
			)
		}
	}
	return actions, payloads, nil
}
