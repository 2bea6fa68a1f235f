// Command clstr-worker runs cluster worker instances and demultiplexers and
// sends one-off invocations to running nodes.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/NamazuStudios/elements-sub015/internal/config"
)

var (
	configPath string
	envFile    string

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "clstr-worker",
	Short: "Cluster node runtime",
	Long: `Runs a worker instance (a master node plus application nodes), a
demultiplexer that routes framed requests to nodes, or a one-off call.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if envFile != "" {
			if _, err := os.Stat(envFile); err == nil {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("load %s: %w", envFile, err)
				}
			}
		}
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = c
		log = c.Logger(os.Stderr)
		slog.SetDefault(log)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config, if present")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
