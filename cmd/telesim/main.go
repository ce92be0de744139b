package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"telesim/internal/config"
	"telesim/internal/scenario"
)

var version = "0.1.0-dev"

const (
	ExitSuccess = 0
	ExitError   = 2
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(ExitError)
	}
	os.Exit(ExitSuccess)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "telesim",
		Short: "Synthetic usage-telemetry simulator",
		Long: `telesim simulates a population of AI coding assistant users and
exposes their sessions, tokens, costs, tool calls and errors as
Prometheus metrics, optionally pushing them to an OTLP collector.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to YAML config file (built-in defaults if empty)")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newScenariosCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				_ = json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"version": version})
				return
			}
			fmt.Fprintf(cmd.OutOrStdout(), "telesim version %s\n", version)
		},
	}
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and compile every scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			scenarios, err := scenario.CompileAll(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config OK: %d users, %d models, %d scenarios\n",
				cfg.Users.Total, len(cfg.Models()), len(scenarios))
			return nil
		},
	}
}

type scenarioInfo struct {
	Name            string  `json:"name"`
	Description     string  `json:"description,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Events          int     `json:"events"`
}

func newScenariosCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the configured scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			compiled, err := scenario.CompileAll(cfg)
			if err != nil {
				return err
			}

			infos := make([]scenarioInfo, 0, len(compiled))
			for _, name := range cfg.ScenarioNames() {
				sc := compiled[name]
				infos = append(infos, scenarioInfo{
					Name:            name,
					Description:     sc.Description,
					DurationSeconds: sc.Duration,
					Events:          len(sc.Events),
				})
			}

			out := cmd.OutOrStdout()
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tDURATION\tEVENTS\tDESCRIPTION")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%gs\t%d\t%s\n", info.Name, info.DurationSeconds, info.Events, info.Description)
			}
			return tw.Flush()
		},
	}
}
