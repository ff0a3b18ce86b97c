package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vigil/internal/runconfig"
	"vigil/internal/services/backend"
)

func newConfigsCommand(ctx *commandContext) *cobra.Command {
	configsCmd := &cobra.Command{
		Use:   "configs",
		Short: "Manage analysis configurations stored on the backend",
	}
	configsCmd.AddCommand(newConfigsListCommand(ctx))
	configsCmd.AddCommand(newConfigsShowCommand(ctx))
	configsCmd.AddCommand(newConfigsSaveCommand(ctx))
	configsCmd.AddCommand(newConfigsUpdateCommand(ctx))
	configsCmd.AddCommand(newConfigsDeleteCommand(ctx))
	configsCmd.AddCommand(newConfigsExportCommand(ctx))
	return configsCmd
}

type configSourceFlags struct {
	name           string
	categories     []string
	categoriesFile string
	settingsFile   string
	runConfigFile  string
}

func (f *configSourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Configuration name")
	cmd.Flags().StringSliceVar(&f.categories, "categories", nil, "Anomaly categories, comma separated")
	cmd.Flags().StringVar(&f.categoriesFile, "categories-file", "", "YAML list of anomaly categories")
	cmd.Flags().StringVar(&f.settingsFile, "settings-file", "", "YAML settings mapping")
	cmd.Flags().StringVar(&f.runConfigFile, "run-config", "", "YAML document holding categories and settings")
}

func (f configSourceFlags) runFlags(configID int64) runFlags {
	return runFlags{
		categories:     f.categories,
		categoriesFile: f.categoriesFile,
		settingsFile:   f.settingsFile,
		runConfigFile:  f.runConfigFile,
		configID:       configID,
	}
}

func newConfigsListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored configurations",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			configs, err := client.ListConfigurations(cmd.Context())
			if err != nil {
				return err
			}
			sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
			if jsonOutput {
				return writeJSON(cmd, configs)
			}
			if len(configs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No stored configurations")
				return nil
			}
			rows := make([][]string, 0, len(configs))
			for _, cfg := range configs {
				rows = append(rows, []string{
					strconv.FormatInt(cfg.ID, 10),
					cfg.Name,
					strings.Join(cfg.Categories, ", "),
					cfg.CreatedAt,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Categories", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show <config-id>",
		Short: "Show a stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "configuration id")
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			stored, err := client.GetConfiguration(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, stored)
			}
			settings, err := runconfig.EncodeSettings(stored.Settings)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configuration %d: %s\n", stored.ID, stored.Name)
			if stored.CreatedAt != "" {
				fmt.Fprintf(out, "Created: %s\n", stored.CreatedAt)
			}
			fmt.Fprintf(out, "Categories: %s\n", strings.Join(stored.Categories, ", "))
			fmt.Fprintln(out, "Settings:")
			for _, line := range strings.Split(strings.TrimRight(string(settings), "\n"), "\n") {
				fmt.Fprintf(out, "%s%s\n", statusIndent, line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigsSaveCommand(ctx *commandContext) *cobra.Command {
	var flags configSourceFlags
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store a new configuration on the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.TrimSpace(flags.name)
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			rc, err := resolveRunConfiguration(cmd.Context(), cfg, client, flags.runFlags(0))
			if err != nil {
				return err
			}
			if err := rc.Validate(); err != nil {
				return err
			}
			id, err := client.SaveConfiguration(cmd.Context(), backend.ConfigurationInput{
				Name:       name,
				Categories: rc.Categories,
				Settings:   rc.Settings,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved configuration %d (%s)\n", id, name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newConfigsUpdateCommand(ctx *commandContext) *cobra.Command {
	var flags configSourceFlags
	cmd := &cobra.Command{
		Use:   "update <config-id>",
		Short: "Replace the categories or settings of a stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "configuration id")
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			stored, err := client.GetConfiguration(cmd.Context(), id)
			if err != nil {
				return err
			}
			source := flags.runFlags(id)
			if strings.TrimSpace(flags.runConfigFile) != "" {
				source.configID = 0
			}
			rc, err := resolveRunConfiguration(cmd.Context(), cfg, client, source)
			if err != nil {
				return err
			}
			if err := rc.Validate(); err != nil {
				return err
			}
			name := strings.TrimSpace(flags.name)
			if name == "" {
				name = stored.Name
			}
			if err := client.UpdateConfiguration(cmd.Context(), id, backend.ConfigurationInput{
				Name:       name,
				Categories: rc.Categories,
				Settings:   rc.Settings,
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated configuration %d (%s)\n", id, name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newConfigsDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <config-id>",
		Short: "Delete a stored configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "configuration id")
			if err != nil {
				return err
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			if err := client.DeleteConfiguration(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted configuration %d\n", id)
			return nil
		},
	}
}

func newConfigsExportCommand(ctx *commandContext) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <config-id>",
		Short: "Write a stored configuration to a local YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "configuration id")
			if err != nil {
				return err
			}
			if strings.TrimSpace(output) == "" {
				return fmt.Errorf("--output is required")
			}
			client, _, err := ctx.client(cmd)
			if err != nil {
				return err
			}
			stored, err := client.GetConfiguration(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := runconfig.Save(output, stored.RunConfiguration()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote configuration %d to %s\n", id, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination YAML file (usable with --run-config)")
	return cmd
}
