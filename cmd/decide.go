package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/frahmantamala/ifarm/internal/access"
	"github.com/frahmantamala/ifarm/internal/core/principal"
	"github.com/frahmantamala/ifarm/internal/permission"
	"github.com/spf13/cobra"
)

var decideCmd = &cobra.Command{
	Use:   "decide",
	Short: "Run one access decision and print it",
	Long: `Ask the engine whether a user may perform an action, exactly as the API would.
The decision is written to the audit log like any other.`,
	RunE: runDecide,
}

var decideFlags struct {
	userID         int64
	action         string
	resourceType   string
	resourceID     string
	resourceTenant int64
	at             string
	timezone       string
	via            int64
	attrs          map[string]string
}

func runDecide(cmd *cobra.Command, _ []string) error {
	action, err := permission.ParseAction(decideFlags.action)
	if err != nil {
		return err
	}
	rt, err := permission.ParseResourceType(decideFlags.resourceType)
	if err != nil {
		return err
	}
	at := time.Now()
	if decideFlags.at != "" {
		if at, err = time.Parse(time.RFC3339, decideFlags.at); err != nil {
			return fmt.Errorf("--at must be RFC3339: %w", err)
		}
	}

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

	u, err := app.Users.GetByID(ctx, decideFlags.userID)
	if err != nil {
		return err
	}

	attrs := make(map[string]interface{}, len(decideFlags.attrs))
	for k, v := range decideFlags.attrs {
		attrs[k] = v
	}

	decision := app.Engine.Decide(ctx, access.Request{
		Subject: principal.Subject{
			UserID:          u.ID,
			TenantID:        u.TenantID,
			SuperAdmin:      u.IsSuperAdmin,
			ViaDelegationID: decideFlags.via,
		},
		Action: action,
		Resource: access.Resource{
			Type:       rt,
			ID:         decideFlags.resourceID,
			TenantID:   decideFlags.resourceTenant,
			Attributes: attrs,
		},
		Environment: access.Environment{Time: at, Timezone: decideFlags.timezone},
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(decision)
}

func init() {
	f := decideCmd.Flags()
	f.Int64Var(&decideFlags.userID, "user", 0, "subject user id")
	f.StringVar(&decideFlags.action, "action", "", "action, e.g. view")
	f.StringVar(&decideFlags.resourceType, "resource", "", "resource type, e.g. animal")
	f.StringVar(&decideFlags.resourceID, "resource-id", "", "resource id")
	f.Int64Var(&decideFlags.resourceTenant, "resource-tenant", 0, "owning tenant of the resource (defaults to the user's)")
	f.StringVar(&decideFlags.at, "at", "", "evaluation time, RFC3339 (defaults to now)")
	f.StringVar(&decideFlags.timezone, "timezone", "", "timezone override for time conditions")
	f.Int64Var(&decideFlags.via, "via", 0, "delegation id the user is acting under")
	f.StringToStringVar(&decideFlags.attrs, "attr", nil, "resource attributes, key=value")
	_ = decideCmd.MarkFlagRequired("user")
	_ = decideCmd.MarkFlagRequired("action")
	_ = decideCmd.MarkFlagRequired("resource")

	rootCmd.AddCommand(decideCmd)
}
