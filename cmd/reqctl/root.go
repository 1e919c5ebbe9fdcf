package main

import (
	"fmt"

	"itdesk/internal/bootstrap"
	"itdesk/internal/config"
	"itdesk/internal/database"
	"itdesk/internal/repository"
	"itdesk/internal/service"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

const version = "1.0.0"

// deps is the state shared by the subcommands of one invocation.
type deps struct {
	cfg *config.Config
	db  *gorm.DB
	rdb *redis.Client
}

func (r *deps) requestService() *service.RequestService {
	return service.NewRequestService(r.db,
		repository.NewRequestRepository(r.db),
		repository.NewMirrorRepository(r.db),
		nil,
		service.PolicyFromConfig(r.cfg),
	)
}

func (r *deps) rebuildService() *service.RebuildService {
	return service.NewRebuildService(r.db,
		repository.NewRequestRepository(r.db),
		repository.NewMirrorRepository(r.db),
		service.PolicyFromConfig(r.cfg).MaxRetries,
	)
}

// open loads configuration and connects with the schema applied.
func (r *deps) open(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg
	r.db, r.rdb, err = bootstrap.InitRuntime(cmd.Context(), cfg, bootstrap.Options{ApplySchema: true})
	return err
}

// openRaw connects without touching the schema, for the migrate commands.
func (r *deps) openRaw(_ *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	r.cfg = cfg
	r.db, err = database.ConnectWithOptions(cfg, database.ConnectOptions{ApplySchema: false})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	return nil
}

func (r *deps) close(_ *cobra.Command, _ []string) {
	bootstrap.Close(r.db, r.rdb)
	r.db, r.rdb = nil, nil
}

func newRootCmd() *cobra.Command {
	rt := &deps{}

	rootCmd := &cobra.Command{
		Use:   "reqctl",
		Short: "operate the IT request store",
		Long: fmt.Sprintf(`reqctl (v%s)

Inspect, repair and maintain the IT request master table and its
status tables. Configuration is read from config.yml and the environment,
exactly as the API server reads it.`, version),
		SilenceUsage:      true,
		PersistentPreRunE: rt.open,
		PersistentPostRun: rt.close,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of reqctl",
		// Overrides the root hook so no connection is opened.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		PersistentPostRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "reqctl v%s\n", version)
		},
	}

	rootCmd.AddCommand(
		versionCmd,
		newCountsCmd(rt),
		newRebuildCmd(rt),
		newClearCmd(rt),
		newMigrateLegacyCmd(rt),
		newSeedCmd(rt),
		newWatchCmd(rt),
		newMigrateCmd(rt),
	)
	return rootCmd
}
