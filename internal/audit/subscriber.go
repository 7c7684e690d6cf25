package audit

import (
	"context"
	"strconv"

	"github.com/frahmantamala/ifarm/internal/core/events"
)

// Subscribe records every access-changing write published on the bus.
func Subscribe(bus *events.EventBus, rec Recorder) {
	bus.SubscribeAll(events.ChangeTypes, ChangeHandler(rec))
}

// ChangeHandler turns an access change event into an audit entry.
func ChangeHandler(rec Recorder) events.Handler {
	return func(ctx context.Context, event events.Event) error {
		change, ok := event.(*events.AccessChangedEvent)
		if !ok {
			return nil
		}

		e := Entry{
			UserID:     change.ActorID,
			Action:     change.EntityType + "." + change.Operation,
			EntityType: change.EntityType,
			Details:    Details(change.Data),
			LoggedAt:   change.OccurredAt(),
		}
		if change.TenantID != 0 {
			e.TenantID = Int64(change.TenantID)
		}
		if change.EntityID != 0 {
			e.EntityID = String(strconv.FormatInt(change.EntityID, 10))
		}
		if ip, ok := IPFromContext(ctx); ok {
			e.IPAddress = String(ip)
		}
		rec.Record(ctx, e)
		return nil
	}
}

type ipKey struct{}

// WithIP attaches the caller address so entries recorded further down the
// request can carry it.
func WithIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ipKey{}, ip)
}

func IPFromContext(ctx context.Context) (string, bool) {
	ip, ok := ctx.Value(ipKey{}).(string)
	return ip, ok && ip != ""
}
