package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"easel/internal/catalog"
	"easel/internal/logging"
	"easel/internal/providers/remote"
)

func newEndpointsCommand(ctx *commandContext) *cobra.Command {
	endpointsCmd := &cobra.Command{
		Use:   "endpoints",
		Short: "Browse and maintain the endpoint catalog",
	}

	endpointsCmd.AddCommand(newEndpointsListCommand(ctx))
	endpointsCmd.AddCommand(newEndpointsRefreshCommand(ctx))
	endpointsCmd.AddCommand(newEndpointsSearchCommand(ctx))
	endpointsCmd.AddCommand(newEndpointsRegisterCommand(ctx))

	return endpointsCmd
}

func newEndpointsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List catalog endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat := catalog.New(cfg, nil, logging.NewNop())
			endpoints, err := cat.Endpoints(cmd.Context())
			if err != nil {
				return err
			}

			keys := make([]string, 0, len(endpoints))
			for key := range endpoints {
				keys = append(keys, key)
			}
			sort.Strings(keys)

			rows := make([]table.Row, 0, len(keys))
			for _, key := range keys {
				endpoint := endpoints[key]
				modes := make([]string, 0, len(endpoint.Modes))
				for _, mode := range endpoint.Modes {
					modes = append(modes, string(mode))
				}
				rows = append(rows, table.Row{
					endpoint.Key,
					endpoint.DisplayName,
					strings.Join(modes, ", "),
					string(endpoint.Execution),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable(table.Row{"Key", "Name", "Modes", "Execution"}, rows))
			return nil
		},
	}
}

func newEndpointsRefreshCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rebuild the catalog from provider documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat := catalog.New(cfg, nil, logging.NewNop())
			endpoints, err := cat.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Catalog rebuilt: %d endpoints\n", len(endpoints))
			return nil
		},
	}
}

func newEndpointsSearchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "search <provider> <query>",
		Short: "Search a remote provider's model listing",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat := catalog.New(cfg, nil, logging.NewNop())
			provider, err := cat.Provider(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			client := remote.NewClient(provider, cfg, logging.NewNop())
			models, err := client.SearchModels(cmd.Context(), args[1])
			if err != nil {
				return err
			}
			if len(models) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No models found")
				return nil
			}

			rows := make([]table.Row, 0, len(models))
			for _, model := range models {
				rows = append(rows, table.Row{model.ID, model.DisplayName, model.TypeHint})
			}
			fmt.Fprintln(cmd.OutOrStdout(),
				renderTable(table.Row{"ID", "Name", "Type"}, rows))
			return nil
		},
	}
	return cmd
}

func newEndpointsRegisterCommand(ctx *commandContext) *cobra.Command {
	var displayName string
	var typeHint string

	cmd := &cobra.Command{
		Use:   "register <provider> <modelID>",
		Short: "Register a model id against a known provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cat := catalog.New(cfg, nil, logging.NewNop())
			if _, err := cat.Provider(cmd.Context(), args[0]); err != nil {
				return err
			}

			models, err := catalog.LoadUserModels(cfg)
			if err != nil {
				return err
			}
			for _, model := range models {
				if model.Provider == args[0] && model.ID == args[1] {
					return fmt.Errorf("model %s/%s is already registered", args[0], args[1])
				}
			}
			models = append(models, catalog.UserModel{
				Provider:    args[0],
				ID:          args[1],
				DisplayName: displayName,
				TypeHint:    typeHint,
			})
			if err := catalog.SaveUserModels(cfg, models); err != nil {
				return err
			}

			endpoints, err := cat.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %s/%s; catalog now has %d endpoints\n",
				args[0], args[1], len(endpoints))
			return nil
		},
	}

	cmd.Flags().StringVar(&displayName, "name", "", "Display name for the model")
	cmd.Flags().StringVar(&typeHint, "type", "", "Capability hint, e.g. text-to-video")
	return cmd
}
