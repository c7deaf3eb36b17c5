package core

import (
	"fmt"
	"time"
)

// LeaseStatus mirrors the task's execution status as seen by the lease
// layer, which is deliberately narrower than the Supervisor's own session
// status since it only needs to distinguish "alive" from "winding down".
type LeaseStatus string

const (
	LeaseStatusRunning LeaseStatus = "running"
	LeaseStatusPaused  LeaseStatus = "paused"
)

// ExecutionLease records which process owns the in-flight execution of a
// task, so a restarted orchestrator can tell a genuinely orphaned task from
// one another live instance already owns.
type ExecutionLease struct {
	TaskID          TaskID      `json:"taskId"`
	OwnerID         string      `json:"ownerId"`
	StartedAt       time.Time   `json:"startedAt"`
	LastHeartbeatAt time.Time   `json:"lastHeartbeatAt"`
	Status          LeaseStatus `json:"status"`
}

// Fresh reports whether the lease's last heartbeat is within ttl of now.
func (l ExecutionLease) Fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(l.LastHeartbeatAt) <= ttl
}

// NewOwnerID builds the owner identity format host:pid:startup-nonce:startedAt.
func NewOwnerID(host string, pid int, startupNonce string, startedAt time.Time) string {
	return fmt.Sprintf("%s:%d:%s:%d", host, pid, startupNonce, startedAt.UnixNano())
}

// HeartbeatInterval returns the heartbeat cadence for a given lease TTL:
// max(5s, ttl/3).
func HeartbeatInterval(ttl time.Duration) time.Duration {
	third := ttl / 3
	if third < 5*time.Second {
		return 5 * time.Second
	}
	return third
}
