// Command bt2c-node is a thin process wrapper around the ledger core:
// it loads chaincfg.Config, constructs a chain.Ledger and
// mempool.Mempool, starts the mempool's background eviction loop, and
// serves a health endpoint. It carries no consensus logic of its own
// (spec §6: "the ledger core prescribes no transport") — block
// production and P2P gossip are left to a collaborator, same boundary
// the teacher draws between its services/ binaries and their shared
// core packages.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const progname = "bt2c-node"

var version string
var commit string

func newRootCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     progname,
		Short:   "bt2c-node runs the BT2C ledger core (chain + mempool) behind a health endpoint",
		Version: fmt.Sprintf("%s (%s)", orDefault(version, "dev"), orDefault(commit, "unknown")),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(v)
		},
	}

	flags := cmd.Flags()
	flags.String("network", "mainnet", "network to run: mainnet, testnet, or devnet")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("health-addr", ":8080", "address for the health/metrics HTTP endpoint")
	flags.String("config-dir", ".", "directory to search for bt2c-node.{yaml,json,toml}")
	flags.Bool("metrics", true, "expose a Prometheus /metrics endpoint")

	_ = v.BindPFlag("network", flags.Lookup("network"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("health_addr", flags.Lookup("health-addr"))
	_ = v.BindPFlag("config_dir", flags.Lookup("config-dir"))
	_ = v.BindPFlag("metrics_enabled", flags.Lookup("metrics"))

	v.SetEnvPrefix("BT2C")
	v.AutomaticEnv()

	return cmd
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
