package executor

import (
	"github.com/crytic/crossguard/events"
	"github.com/crytic/crossguard/types"
)

// ExecutorEvents defines event emitters for an Executor.
type ExecutorEvents struct {
	// LeakDetected emits events when the target transaction was proven to redirect the victim transaction into the
	// dependent function.
	LeakDetected events.EventEmitter[LeakDetectedEvent]
}

// LeakDetectedEvent describes an event where an Executor detected a control leak.
type LeakDetectedEvent struct {
	// Executor represents the instance of the Executor for which the event occurred.
	Executor *Executor

	// Finding describes the detected leak.
	Finding *types.Finding
}

// ReplayExecutorEvents defines event emitters for a ReplayExecutor.
type ReplayExecutorEvents struct {
	// TransactionReplayed emits events after a transaction was replayed and its call graph recorded.
	TransactionReplayed events.EventEmitter[TransactionReplayedEvent]
}

// TransactionReplayedEvent describes an event where a ReplayExecutor finished replaying a transaction.
type TransactionReplayedEvent struct {
	// Result describes the replay. Its Verification is nil unless verification is enabled.
	Result *ReplayResult
}
