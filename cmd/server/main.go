// Command whattoeat serves restaurant recommendations over HTTP and manages the catalog.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"whattoeat/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "whattoeat",
	Short: "Restaurant recommendation service",
	Long: `whattoeat ranks nearby restaurants against a diner's budget, cuisines, dietary
restrictions and the time they want to eat. Without a subcommand it runs the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return os.Setenv(config.PathEnvVar, cfgFile)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveFlags)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	bindServeFlags(rootCmd)

	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
