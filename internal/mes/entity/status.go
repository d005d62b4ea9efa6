package entity

// OrderStatus is the aggregate lifecycle of a sales order.
type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusInDesign     OrderStatus = "IN_DESIGN"
	OrderStatusPrePress     OrderStatus = "PRE_PRESS"
	OrderStatusInProduction OrderStatus = "IN_PRODUCTION"
	OrderStatusFinished     OrderStatus = "FINISHED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:      {OrderStatusInDesign, OrderStatusPrePress, OrderStatusCancelled},
	OrderStatusInDesign:     {OrderStatusInDesign, OrderStatusPrePress, OrderStatusCancelled},
	OrderStatusPrePress:     {OrderStatusInProduction, OrderStatusFinished, OrderStatusCancelled},
	OrderStatusInProduction: {OrderStatusFinished, OrderStatusCancelled},
}

// CanTransition reports whether the order may move to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return allowed(orderTransitions, s, next)
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusFinished || s == OrderStatusCancelled
}

// DesignStatus tracks the artwork approval loop.
type DesignStatus string

const (
	DesignStatusPending  DesignStatus = "PENDING"
	DesignStatusSent     DesignStatus = "SENT"
	DesignStatusApproved DesignStatus = "APPROVED"
	DesignStatusRejected DesignStatus = "REJECTED"
)

// Client-supplied artwork may approve the design from any non-approved state.
var designTransitions = map[DesignStatus][]DesignStatus{
	DesignStatusPending:  {DesignStatusSent, DesignStatusApproved},
	DesignStatusSent:     {DesignStatusApproved, DesignStatusRejected},
	DesignStatusRejected: {DesignStatusSent, DesignStatusApproved},
}

func (s DesignStatus) CanTransition(next DesignStatus) bool {
	return allowed(designTransitions, s, next)
}

// TaskStatus is the production task state machine.
type TaskStatus string

const (
	TaskStatusPendingNesting TaskStatus = "PENDING_NESTING"
	TaskStatusBatched        TaskStatus = "BATCHED"
	TaskStatusPrinted        TaskStatus = "PRINTED"
	TaskStatusInMachine      TaskStatus = "IN_MACHINE"
	TaskStatusDone           TaskStatus = "DONE"
	TaskStatusCancelled      TaskStatus = "CANCELLED"
)

var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusPendingNesting: {TaskStatusBatched, TaskStatusInMachine, TaskStatusCancelled},
	TaskStatusBatched:        {TaskStatusPrinted, TaskStatusPendingNesting, TaskStatusCancelled},
	TaskStatusPrinted:        {TaskStatusInMachine, TaskStatusCancelled},
	TaskStatusInMachine:      {TaskStatusDone, TaskStatusCancelled},
}

func (s TaskStatus) CanTransition(next TaskStatus) bool {
	return allowed(taskTransitions, s, next)
}

func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

// TerminalTaskStatuses lists statuses that no longer count as work-center load.
var TerminalTaskStatuses = []TaskStatus{TaskStatusDone, TaskStatusCancelled}

// BatchStatus of a substrate sheet.
type BatchStatus string

const (
	BatchStatusBatched   BatchStatus = "BATCHED"
	BatchStatusPrinted   BatchStatus = "PRINTED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchStatusBatched: {BatchStatusPrinted, BatchStatusCancelled},
}

func (s BatchStatus) CanTransition(next BatchStatus) bool {
	return allowed(batchTransitions, s, next)
}

// Phase labels a labor interval.
type Phase string

const (
	PhaseDesign     Phase = "DESIGN"
	PhasePrePress   Phase = "PRE_PRESS"
	PhaseProduction Phase = "PRODUCTION"
)

// ParsePhase validates a phase label coming from the outside.
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(s); p {
	case PhaseDesign, PhasePrePress, PhaseProduction:
		return p, true
	}
	return "", false
}

// SubjectType is what a time log is booked against.
type SubjectType string

const (
	SubjectOrder SubjectType = "ORDER"
	SubjectTask  SubjectType = "TASK"
)

func ParseSubjectType(s string) (SubjectType, bool) {
	switch st := SubjectType(s); st {
	case SubjectOrder, SubjectTask:
		return st, true
	}
	return "", false
}

// RevisionOutcome of one design revision record.
type RevisionOutcome string

const (
	RevisionSent     RevisionOutcome = "SENT"
	RevisionApproved RevisionOutcome = "APPROVED"
	RevisionRejected RevisionOutcome = "REJECTED"
)

func allowed[S comparable](table map[S][]S, from, to S) bool {
	for _, next := range table[from] {
		if next == to {
			return true
		}
	}
	return false
}
