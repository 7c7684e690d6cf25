package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int, error)
}

// DelegationExpireJob moves lapsed active delegations to expired. Running it
// twice for the same instant is a no-op the second time.
type DelegationExpireJob struct {
	expirer Expirer
	logger  *slog.Logger
	clock   func() time.Time
}

func NewDelegationExpireJob(expirer Expirer, logger *slog.Logger) *DelegationExpireJob {
	return &DelegationExpireJob{
		expirer: expirer,
		logger:  logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (j *DelegationExpireJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.expirer == nil {
		return errors.New("delegation expire: handler not configured")
	}

	var payload DelegationExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("delegation expire: bad payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	at := payload.At
	if at.IsZero() {
		at = j.clock()
	}

	start := time.Now()
	n, err := j.expirer.ExpireDue(ctx, at)
	if err != nil {
		j.logger.Error("delegation expiry failed", "at", at, "error", err)
		return err
	}

	j.logger.Info("delegation expiry done",
		"at", at,
		"expired", n,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
