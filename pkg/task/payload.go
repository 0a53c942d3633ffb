package task

import (
	"encoding/json"
	"time"

	"ticketing-commerce/pkg/taskname"

	"github.com/hibiken/asynq"
)

// ReconcilePayload names the aggregate owner to recompute.
type ReconcilePayload struct {
	OrgID    string `json:"org_id"`
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason,omitempty"`
}

type OrderNotifyPayload struct {
	OrgID         string    `json:"org_id"`
	OrderID       string    `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerEmail string    `json:"customer_email"`
	TicketCodes   []string  `json:"ticket_codes"`
	CompletedAt   time.Time `json:"completed_at"`
}

type SweepPayload struct {
	OrgID string `json:"org_id"`
}

// NewReconcileTask builds one of the reconcile:* or ledger:heal tasks. Retries are
// deduplicated per entity for a short window.
func NewReconcileTask(taskType string, p ReconcilePayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, b,
		asynq.Queue(taskname.QueueCritical),
		asynq.MaxRetry(10),
		asynq.Unique(30*time.Second),
	), nil
}

func NewOrderNotifyTask(p OrderNotifyPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.OrderNotify, b,
		asynq.Queue(taskname.QueueDefault),
		asynq.MaxRetry(5),
	), nil
}

func NewSweepTask(p SweepPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.SweepOrg, b, asynq.Queue(taskname.QueueLow)), nil
}
