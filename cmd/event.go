package cmd

import (
	"context"
	"fmt"

	"github.com/frahmantamala/ifarm/internal/core/events"
	"github.com/spf13/cobra"
)

var eventCmd = &cobra.Command{
	Use:   "event",
	Short: "Event management commands",
	Long:  `Publish access change events by hand, e.g. to flush a tenant's cached grants after a manual database fix.`,
}

var publishEventCmd = &cobra.Command{
	Use:       "publish [role|policy|delegation|assignment]",
	Short:     "Publish an access change event",
	Long:      `Publish an access change event through the same subscribers as the server: the audit log and the grant cache invalidator.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"role", "policy", "delegation", "assignment"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return publishChangeEvent(args[0])
	},
}

var eventFlags struct {
	tenantID int64
	actorID  int64
	entityID int64
	userID   int64
	op       string
	note     string
}

func publishChangeEvent(kind string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	app, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer app.Close()

	data := map[string]interface{}{"source": "cli", "note": eventFlags.note}

	var event *events.AccessChangedEvent
	switch kind {
	case "role":
		event = events.NewRoleChangedEvent(eventFlags.tenantID, eventFlags.actorID, eventFlags.entityID, eventFlags.op, data)
	case "policy":
		event = events.NewPolicyChangedEvent(eventFlags.tenantID, eventFlags.actorID, eventFlags.entityID, eventFlags.op, data)
	case "delegation":
		event = events.NewDelegationChangedEvent(eventFlags.tenantID, eventFlags.actorID, eventFlags.entityID, eventFlags.op, data)
	case "assignment":
		event = events.NewAssignmentChangedEvent(eventFlags.tenantID, eventFlags.actorID, eventFlags.entityID, eventFlags.userID, eventFlags.op)
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}

	app.Logger.Info("publishing event", "event_type", event.EventType(), "event_id", event.EventID(), "tenant_id", eventFlags.tenantID)
	if err := app.Bus.PublishSync(ctx, event); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	if app.GrantCache != nil {
		v, err := app.GrantCache.Version(ctx, eventFlags.tenantID)
		if err == nil {
			fmt.Printf("tenant %d grant cache version is now %d\n", eventFlags.tenantID, v)
		}
	}
	fmt.Println("event published:", event.EventID())
	return nil
}

func init() {
	f := publishEventCmd.Flags()
	f.Int64Var(&eventFlags.tenantID, "tenant", 0, "tenant id")
	f.Int64Var(&eventFlags.actorID, "actor", 0, "acting user id")
	f.Int64Var(&eventFlags.entityID, "entity", 0, "entity id (role id for assignments)")
	f.Int64Var(&eventFlags.userID, "user", 0, "affected user id for assignment events")
	f.StringVar(&eventFlags.op, "op", events.OpUpdate, "operation name")
	f.StringVar(&eventFlags.note, "note", "", "free text stored in the audit entry")
	_ = publishEventCmd.MarkFlagRequired("tenant")

	eventCmd.AddCommand(publishEventCmd)
	rootCmd.AddCommand(eventCmd)
}
