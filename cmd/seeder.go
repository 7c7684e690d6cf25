package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/frahmantamala/ifarm/internal/policy"
	"github.com/frahmantamala/ifarm/internal/role"
	"github.com/frahmantamala/ifarm/internal/tenant"
	"github.com/frahmantamala/ifarm/internal/user"
	"github.com/spf13/cobra"
)

const seedPassword = "password"

type seedUser struct {
	Email      string
	Name       string
	Template   string
	SuperAdmin bool
}

type seedTenant struct {
	Name     string
	Timezone string
	Users    []seedUser
}

var seedTenants = []seedTenant{
	{
		Name:     "Green Valley Farm",
		Timezone: "Africa/Kampala",
		Users: []seedUser{
			{Email: "owner@greenvalley.farm", Name: "Amina Owner", Template: "farm_owner"},
			{Email: "manager@greenvalley.farm", Name: "Joseph Manager", Template: "farm_manager"},
			{Email: "helper@greenvalley.farm", Name: "Grace Helper", Template: "helper"},
			{Email: "vet@greenvalley.farm", Name: "Dr. Okello", Template: "veterinarian"},
			{Email: "admin@ifarm.io", Name: "Platform Admin", SuperAdmin: true},
		},
	},
	{
		Name:     "Highland Dairy",
		Timezone: "Africa/Nairobi",
		Users: []seedUser{
			{Email: "owner@highland.dairy", Name: "Peter Owner", Template: "farm_owner"},
			{Email: "accounts@highland.dairy", Name: "Mary Accountant", Template: "accountant"},
		},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the permission catalog, two sample tenants, their users, template roles and a working-hours policy.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		ctx := context.Background()
		app, err := buildApp(ctx, cfg, false)
		if err != nil {
			log.Fatalf("failed to init app: %v", err)
		}
		defer app.Close()

		if clearData {
			// audit_logs is append-only and survives a reseed
			if err := app.GormDB.Exec("TRUNCATE delegations, user_roles, roles, policies, users, tenants, permissions RESTART IDENTITY CASCADE").Error; err != nil {
				log.Fatalf("failed to clear data: %v", err)
			}
			fmt.Println("Cleared existing data")
		}

		for _, p := range app.Catalog.All() {
			if err := app.GormDB.Exec(
				"INSERT INTO permissions (id, name, category, action, resource_type, description, created_at) VALUES (?, ?, ?, ?, ?, ?, now()) ON CONFLICT (id) DO NOTHING",
				p.ID, p.Name, string(p.Category), string(p.Action), string(p.ResourceType), p.Description,
			).Error; err != nil {
				log.Fatalf("failed to insert permission %s: %v", p.Name, err)
			}
		}
		fmt.Printf("Seeded %d permissions\n", len(app.Catalog.All()))

		existing, err := app.Tenants.List(ctx)
		if err != nil {
			log.Fatalf("failed to list tenants: %v", err)
		}
		seen := make(map[string]bool, len(existing))
		for _, t := range existing {
			seen[t.Name] = true
		}

		for _, st := range seedTenants {
			if seen[st.Name] {
				fmt.Println("tenant already exists; skipping:", st.Name)
				continue
			}
			if err := seedOneTenant(ctx, app, st); err != nil {
				log.Fatalf("failed to seed tenant %s: %v", st.Name, err)
			}
			fmt.Println("Seeded tenant:", st.Name)
		}
	},
}

func seedOneTenant(ctx context.Context, app *App, st seedTenant) error {
	tz := st.Timezone
	if tz == "" {
		tz = app.Config.Access.DefaultTimezone
	}
	t, err := app.Tenants.Create(ctx, &tenant.Tenant{Name: st.Name, Timezone: tz, IsActive: true})
	if err != nil {
		return err
	}

	hash, err := app.Auth.HashPassword(seedPassword)
	if err != nil {
		return err
	}

	users := make([]*user.User, 0, len(st.Users))
	for _, su := range st.Users {
		u, err := app.Users.Create(ctx, &user.User{
			TenantID:     t.ID,
			Email:        su.Email,
			Name:         su.Name,
			PasswordHash: hash,
			IsSuperAdmin: su.SuperAdmin,
			IsActive:     true,
		})
		if err != nil {
			return fmt.Errorf("user %s: %w", su.Email, err)
		}
		users = append(users, u)
	}
	actorID := users[0].ID

	// Helpers may only touch records during the working day.
	workingHours, err := app.Policies.Create(ctx, t.ID, actorID, policy.CreatePolicyDTO{
		Name:        "Helpers outside working hours",
		Description: "Deny helpers outside 06:00-18:00 on weekdays",
		Priority:    10,
		Effect:      policy.EffectDeny,
		Conditions: []policy.Condition{
			{Attribute: "subject.roles", Operator: policy.OpContains, Value: "Helper"},
		},
		TimeConditions: []policy.TimeCondition{
			{Attribute: policy.AttrTime, Operator: policy.OpNotBetween, Values: []string{"06:00", "18:00"}},
		},
	})
	if err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	roles := map[string]*role.Role{}
	for i, su := range st.Users {
		if su.Template == "" {
			continue
		}
		r, ok := roles[su.Template]
		if !ok {
			tpl, found := role.TemplateByID(su.Template)
			if !found {
				return fmt.Errorf("unknown template %s", su.Template)
			}
			dto := role.CreateRoleDTO{Name: tpl.Name, Description: tpl.Description, TemplateID: tpl.ID}
			if tpl.ID == "helper" {
				dto.PolicyIDs = []int64{workingHours.ID}
			}
			r, err = app.Roles.Create(ctx, t.ID, actorID, dto)
			if err != nil {
				return fmt.Errorf("role %s: %w", tpl.Name, err)
			}
			roles[su.Template] = r
		}
		if err := app.Roles.Assign(ctx, t.ID, actorID, r.ID, users[i].ID); err != nil {
			return fmt.Errorf("assign %s to %s: %w", r.Name, su.Email, err)
		}
		fmt.Printf("  %s -> %s\n", su.Email, r.Name)
	}
	return nil
}
