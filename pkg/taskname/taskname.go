package taskname

const (
	// Reconciliation retries
	ReconcileTicketType = "reconcile:ticket_type"
	ReconcileCustomer   = "reconcile:customer"
	ReconcileRep        = "reconcile:rep"
	ReconcileDiscount   = "reconcile:discount"

	// Ledger
	LedgerHeal = "ledger:heal"

	// Order
	OrderNotify = "order:notify"

	// Periodic
	SweepOrg = "sweep:org"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
