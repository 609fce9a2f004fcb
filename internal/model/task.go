// Package model defines the core domain types for Corral.
//
// Task and run shapes mirror the Taskcluster queue API responses; the
// normalized job and push types are the flattened projections handed to
// the storage loaders. Types use strong typing (enums, time.Time) and
// avoid interface{} wherever possible.
package model

import (
	"encoding/json"
	"time"
)

// RunState is the lifecycle state of a single task run as reported by the
// task-execution service.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateException RunState = "exception"
)

// Resolved reports whether the run has reached a terminal state.
func (s RunState) Resolved() bool {
	switch s {
	case RunStateCompleted, RunStateFailed, RunStateException:
		return true
	default:
		return false
	}
}

// Run is one execution attempt of a task. Runs are immutable once recorded
// upstream; the run list for a task grows monotonically as retries occur.
// RunID is the authoritative retry sequence number; never rely on the run's
// position in the slice.
type Run struct {
	RunID          int        `json:"runId"`
	State          RunState   `json:"state"`
	ReasonCreated  string     `json:"reasonCreated,omitempty"`
	ReasonResolved string     `json:"reasonResolved,omitempty"`
	Scheduled      *time.Time `json:"scheduled,omitempty"`
	Started        *time.Time `json:"started,omitempty"`
	Resolved       *time.Time `json:"resolved,omitempty"`
}

// TaskStatus is the mutable status portion of a task: its current state and
// the ordered history of runs.
type TaskStatus struct {
	TaskID      string   `json:"taskId"`
	TaskGroupID string   `json:"taskGroupId,omitempty"`
	State       RunState `json:"state,omitempty"`
	Runs        []Run    `json:"runs"`
}

// TaskMetadata is the human-readable portion of a task definition.
type TaskMetadata struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	Source      string `json:"source,omitempty"`
}

// TaskDefinition is the immutable definition of a task. Payload and Extra are
// kept raw: their shape is owned by the upstream scheduler and Corral only
// passes them through to the normalizer.
type TaskDefinition struct {
	ProvisionerID string            `json:"provisionerId,omitempty"`
	WorkerType    string            `json:"workerType,omitempty"`
	SchedulerID   string            `json:"schedulerId,omitempty"`
	TaskGroupID   string            `json:"taskGroupId,omitempty"`
	Dependencies  []string          `json:"dependencies,omitempty"`
	Routes        []string          `json:"routes,omitempty"`
	Created       *time.Time        `json:"created,omitempty"`
	Deadline      *time.Time        `json:"deadline,omitempty"`
	Metadata      TaskMetadata      `json:"metadata"`
	Tags          map[string]string `json:"tags,omitempty"`
	Payload       json.RawMessage   `json:"payload,omitempty"`
	Extra         json.RawMessage   `json:"extra,omitempty"`
}

// Task pairs a task's current status with its definition. This is the unit
// the group fetcher hands to the classifier; it is owned transiently by one
// ingestion batch and never persisted as-is.
type Task struct {
	Status     TaskStatus     `json:"status"`
	Definition TaskDefinition `json:"task"`
}
