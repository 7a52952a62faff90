// Copyright 2024 The Ingress-bench Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package loadtest

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a load test job
type State string

const (
	StatePending   State = "Pending"
	StateActive    State = "Active"
	StateSucceeded State = "Succeeded"
	StateFailed    State = "Failed"
	// StateTimedOut marks a job that exceeded its deadline before reaching a
	// terminal Kubernetes condition. It is distinct from StateFailed: the
	// workload did not fail, it ran out of time.
	StateTimedOut State = "TimedOut"
)

// Terminal reports whether no further transitions are allowed from s
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

var stateRank = map[State]int{
	StatePending:   0,
	StateActive:    1,
	StateSucceeded: 2,
	StateFailed:    2,
	StateTimedOut:  2,
}

// Outcome is the result of one load test run. RawLog holds the complete pod
// log and is kept out of serialized reports, callers excerpt it themselves.
type Outcome struct {
	JobName     string        `json:"jobName" yaml:"jobName"`
	State       State         `json:"state" yaml:"state"`
	SubmittedAt time.Time     `json:"submittedAt" yaml:"submittedAt"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
	RawLog      string        `json:"-" yaml:"-"`
}

// transition advances the outcome state. Transitions are monotonic and
// terminal states absorb, a later transition attempt is a no-op.
func (o *Outcome) transition(next State) bool {
	if o.State.Terminal() {
		return false
	}
	if stateRank[next] < stateRank[o.State] {
		return false
	}
	o.State = next
	return true
}

// OrchestrationError reports a fault in driving the load test job itself,
// as opposed to the job running and failing
type OrchestrationError struct {
	Op  string
	Err error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("load test orchestration: %s: %v", e.Op, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a job that was still running at its deadline
type TimeoutError struct {
	JobName string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("load test job %s timed out after %v", e.JobName, e.Timeout)
}
