package main

import (
    "context"
    "fmt"
    "os"
    "strconv"
    "time"

    "github.com/fatih/color"
    "github.com/olekukonko/tablewriter"
    "github.com/spf13/cobra"

    "github.com/hamzaKhattat/fs-xml-router/internal/config"
    "github.com/hamzaKhattat/fs-xml-router/internal/db"
    "github.com/hamzaKhattat/fs-xml-router/internal/models"
    "github.com/hamzaKhattat/fs-xml-router/internal/store"
    "github.com/hamzaKhattat/fs-xml-router/pkg/logger"
)

var (
    green  = color.New(color.FgGreen).SprintFunc()
    red    = color.New(color.FgRed).SprintFunc()
    yellow = color.New(color.FgYellow).SprintFunc()
    bold   = color.New(color.Bold).SprintFunc()
)

var cliStore *store.Store

func runCLI() {
    rootCmd := &cobra.Command{
        Use:   "router",
        Short: "Multi-tenant FreeSWITCH XML lookup service",
        Long:  "Answers directory, dialplan and configuration lookups for a FreeSWITCH-style softswitch and manages the tenant data model.",
    }

    rootCmd.AddCommand(
        createDBCommands(),
        createTenantCommands(),
        createClientCommands(),
        createGroupCommands(),
        createDIDCommands(),
        createGatewayCommands(),
    )

    if err := rootCmd.Execute(); err != nil {
        fmt.Fprintf(os.Stderr, "%s %v\n", red("✗"), err)
        os.Exit(1)
    }
}

func initializeForCLI(ctx context.Context) error {
    cfg, err := config.Load()
    if err != nil {
        return err
    }

    if err := logger.Init(logger.Config{Level: "error"}); err != nil {
        return err
    }

    if err := db.Initialize(db.Config{
        DSN:             cfg.Store.URI,
        Driver:          "mysql",
        MaxOpenConns:    5,
        MaxIdleConns:    2,
        ConnMaxLifetime: 5 * time.Minute,
        RetryAttempts:   1,
        RetryDelay:      time.Second,
    }); err != nil {
        return err
    }

    cliStore = store.New(db.GetDB(), db.GetCache(), cfg.Store.QueryTimeout)
    return nil
}

func createDBCommands() *cobra.Command {
    dbCmd := &cobra.Command{
        Use:   "db",
        Short: "Manage the database schema",
    }

    var drop bool
    initCmd := &cobra.Command{
        Use:   "init",
        Short: "Create tables and seed the demo tenant",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := db.InitializeDatabase(ctx, db.GetDB().DB, drop); err != nil {
                return err
            }
            fmt.Printf("%s Database initialized\n", green("✓"))
            return nil
        },
    }
    initCmd.Flags().BoolVar(&drop, "drop", false, "Drop existing tables first")

    migrateCmd := &cobra.Command{
        Use:   "migrate",
        Short: "Apply pending schema migrations",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := db.RunDatabaseMigrations(db.GetDB().DB); err != nil {
                return err
            }
            fmt.Printf("%s Migrations applied\n", green("✓"))
            return nil
        },
    }

    dbCmd.AddCommand(initCmd, migrateCmd)
    return dbCmd
}

func createTenantCommands() *cobra.Command {
    tenantCmd := &cobra.Command{
        Use:   "tenant",
        Short: "Manage tenants",
    }

    var profile string
    addCmd := &cobra.Command{
        Use:   "add <domain>",
        Short: "Create a tenant",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            tenant := &models.Tenant{DomainName: args[0], Profile: profile}
            if err := cliStore.CreateTenant(ctx, tenant); err != nil {
                return err
            }
            fmt.Printf("%s Tenant '%s' created\n", green("✓"), args[0])
            return nil
        },
    }
    addCmd.Flags().StringVar(&profile, "profile", "internal", "SIP profile the tenant registers to")

    listCmd := &cobra.Command{
        Use:   "list",
        Short: "List tenants",
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            tenants, err := cliStore.ListTenants(ctx)
            if err != nil {
                return err
            }

            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"ID", "Domain", "Profile", "Created"})
            for _, t := range tenants {
                table.Append([]string{
                    strconv.FormatInt(t.ID, 10),
                    t.DomainName,
                    t.Profile,
                    t.CreatedAt.Format("2006-01-02 15:04"),
                })
            }
            table.Render()
            return nil
        },
    }

    showCmd := &cobra.Command{
        Use:   "show <domain>",
        Short: "Show a tenant with its embedded entities",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            tenant, err := cliStore.TenantByDomain(ctx, args[0])
            if err != nil {
                return err
            }

            fmt.Printf("%s %s (profile %s)\n", bold("Tenant:"), tenant.DomainName, tenant.Profile)

            fmt.Printf("\n%s\n", bold("SIP clients"))
            table := tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"User", "Display Name", "Voicemail", "Timeout"})
            for _, c := range tenant.SipClients {
                vm := red("off")
                if c.EnableVoicemail {
                    vm = green("on")
                }
                table.Append([]string{c.UserID, c.DisplayName, vm, strconv.Itoa(c.NoAnswerTimeout)})
            }
            table.Render()

            fmt.Printf("\n%s\n", bold("Groups"))
            table = tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Name", "Type", "Members", "Timeout", "Voicemail Box"})
            for _, g := range tenant.Groups {
                table.Append([]string{
                    g.Name, string(g.Type),
                    strconv.Itoa(len(g.Members)),
                    strconv.Itoa(g.Timeout),
                    g.VoicemailBoxID,
                })
            }
            table.Render()

            fmt.Printf("\n%s\n", bold("DIDs"))
            table = tablewriter.NewWriter(os.Stdout)
            table.SetHeader([]string{"Number", "Active", "Routing", "Target", "Failover"})
            for _, d := range tenant.DIDs {
                active := red("no")
                if d.Active {
                    active = green("yes")
                }
                table.Append([]string{
                    d.DidNumber, active,
                    string(d.RoutingType), d.RoutingTarget,
                    d.FailoverRoutingTarget,
                })
            }
            table.Render()
            return nil
        },
    }

    deleteCmd := &cobra.Command{
        Use:   "delete <domain>",
        Short: "Delete a tenant and everything it owns",
        Args:  cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            ctx := context.Background()
            if err := initializeForCLI(ctx); err != nil {
                return err
            }
            if err := cliStore.DeleteTenant(ctx, args[0]); err != nil {
                return err
            }
            fmt.Printf("%s Tenant '%s' deleted\n", yellow("✓"), args[0])
            return nil
        },
    }

    tenantCmd.AddCommand(addCmd, listCmd, showCmd, deleteCmd)
    return tenantCmd
}
