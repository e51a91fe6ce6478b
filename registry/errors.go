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
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type NotFoundError struct {
	ProposalID uint64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("proposal %d not found", e.ProposalID)
}

type InvalidTransitionError struct {
	ProposalID uint64
	From       ProposalState
	To         ProposalState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf(
		"proposal %d: invalid state transition %s -> %s",
		e.ProposalID,
		e.From,
		e.To,
	)
}
