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
	"fmt"
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type UnauthorizedError struct {
	Caller string
	Reason string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %s is not authorized: %s", e.Caller, e.Reason)
}

// NotExecutableError indicates a proposal is not in a state that permits
// execution
type NotExecutableError struct {
	ProposalID uint64
	State      string
}

func (e *NotExecutableError) Error() string {
	return fmt.Sprintf(
		"proposal %d cannot be executed (state: %s)",
		e.ProposalID,
		e.State,
	)
}

// OracleError wraps a voting power oracle failure during authorization
type OracleError struct {
	Err error
}

func (e *OracleError) Error() string {
	return fmt.Sprintf("voting power oracle failure: %s", e.Err)
}

func (e *OracleError) Unwrap() error {
	return e.Err
}
