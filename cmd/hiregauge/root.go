package main

import "github.com/spf13/cobra"

const app = "hiregauge"

// cfgFile is the --config flag value, shared by every subcommand.
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   app,
	Short: "Candidate evaluation and scoring engine",
	Long: `hiregauge turns raw hiring signals from screening, video interviews,
coding tests, and managerial rounds into normalized phase scores, a
confidence-weighted composite score, and a market compensation band.

Run "hiregauge serve" for the HTTP service or "hiregauge evaluate" to
score a batch of signals from a file.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"path to a YAML config file (HIREGAUGE_* environment variables override it)")
}
