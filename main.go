package main

import (
	"log"

	"github.com/spf13/cobra"

	"chat-sync/internal/config"
	"chat-sync/internal/db"
	"chat-sync/internal/logger"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatalf("chat-sync: %v", err)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "chat-sync",
		Short:         "Message delivery and dialog read-state sync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "optional config file (env vars take precedence)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and gRPC health servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			log := logger.New(cfg.LogLevel)
			defer log.Sync()

			database, err := db.Open(cfg.DBDSN)
			if err != nil {
				return err
			}
			defer database.Close()
			return db.Migrate(database, log)
		},
	})

	return root
}
