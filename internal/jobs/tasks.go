package jobs

import (
	"encoding/json"
	"time"

	"github.com/frahmantamala/ifarm/internal"
	"github.com/hibiken/asynq"
)

const (
	QueueDefault = "default"

	TaskDelegationExpire = "delegation:expire"
)

// DelegationExpirePayload carries the instant to expire against. A zero At
// means the handler's own clock.
type DelegationExpirePayload struct {
	At time.Time `json:"at,omitempty"`
}

func NewDelegationExpireTask(payload DelegationExpirePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDelegationExpire, data), nil
}

// RedisOpt adapts the shared redis config for asynq.
func RedisOpt(cfg internal.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}
