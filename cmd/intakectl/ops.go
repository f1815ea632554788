package main

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/database"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/events"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/adapters/templates"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/providers"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/infrastructure/clients/redis"
)

func templatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "Manage validation prompt templates",
	}

	seed := &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Insert every template in a YAML file into the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := templates.NewFileRepository(args[0])
			if err != nil {
				return err
			}
			parsed := repo.All()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			pg, err := postgres.NewClient(cmd.Context(), &cfg.Database)
			if err != nil {
				return err
			}
			defer pg.Close()

			adapter := database.NewTemplateAdapter(pg)
			for i := range parsed {
				id, err := adapter.Create(cmd.Context(), &parsed[i])
				if err != nil {
					return fmt.Errorf("template %s v%d: %w", parsed[i].Name, parsed[i].Version, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\tv%d\tactive=%t\n", id, parsed[i].Name, parsed[i].Version, parsed[i].Active)
			}
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check <file.yaml>",
		Short: "Validate a template file and print the template that would be active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := templates.NewFileRepository(args[0])
			if err != nil {
				return err
			}
			active, err := repo.GetActive(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d templates, active: %s v%d\n", len(repo.All()), active.Name, active.Version)
			return nil
		},
	}

	cmd.AddCommand(seed, check)
	return cmd
}

func watchCmd() *cobra.Command {
	var orgID int64
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream committed order events as JSON lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			rc, err := redis.NewClient(cmd.Context(), &cfg.Redis)
			if err != nil {
				return err
			}
			defer rc.Close()

			bus := events.NewRedisEventBus(rc)
			defer bus.Close()

			channel := providers.EventChannelOrderUpdates
			if orgID > 0 {
				channel = providers.GetOrganizationChannel(orgID)
			}
			stream, err := bus.Subscribe(cmd.Context(), channel)
			if err != nil {
				return err
			}
			log.Info().Str("channel", channel).Msg("watching order events")

			enc := json.NewEncoder(cmd.OutOrStdout())
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-stream:
					if !ok {
						return nil
					}
					if err := enc.Encode(event); err != nil {
						return err
					}
				}
			}
		},
	}
	cmd.Flags().Int64Var(&orgID, "org", 0, "only events for this organization")
	return cmd
}
