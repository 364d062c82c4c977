// Package models defines the domain models for the funnel engine.
package models

import (
	"time"
)

// WorkflowDefinition is the workflow document deployed to the automation
// backend. It is immutable once deployed; updates replace it wholesale.
type WorkflowDefinition struct {
	Name        string                 `json:"name"`
	Nodes       []WorkflowNode         `json:"nodes"`
	Connections WorkflowConnections    `json:"connections"`
	Settings    map[string]interface{} `json:"settings,omitempty"`
}

// WorkflowNode is a single step node in a workflow definition.
type WorkflowNode struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	TypeVersion int                    `json:"typeVersion"`
	Position    [2]int                 `json:"position"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// WorkflowConnections is the connection graph between nodes, keyed by the
// source node id.
type WorkflowConnections map[string]NodeConnections

// NodeConnections lists the outgoing connections of one node.
type NodeConnections struct {
	Main [][]Connection `json:"main,omitempty"`
}

// Connection points to a destination node input.
type Connection struct {
	Node  string `json:"node"`
	Type  string `json:"type"`
	Index int    `json:"index"`
}

// ExecutionStatus is the status reported by the automation backend for a
// workflow execution.
type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "running"
	ExecutionSuccess ExecutionStatus = "success"
	ExecutionError   ExecutionStatus = "error"
	ExecutionWaiting ExecutionStatus = "waiting"
)

// WorkflowExecution is one run of a workflow as tracked by the automation
// backend. Transitions are driven only by webhook events or explicit stop
// calls.
type WorkflowExecution struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Status     ExecutionStatus        `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// WorkflowSummary is the listing form returned by the automation backend.
type WorkflowSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}
