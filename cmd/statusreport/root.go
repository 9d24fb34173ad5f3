package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/statusreport/internal/config"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/logging"

	_ "github.com/hejijunhao/statusreport/internal/connector/feed"
	_ "github.com/hejijunhao/statusreport/internal/connector/generic"
	_ "github.com/hejijunhao/statusreport/internal/connector/statushtml"
	_ "github.com/hejijunhao/statusreport/internal/connector/statuspage"
	_ "github.com/hejijunhao/statusreport/internal/provider/anthropic"
	_ "github.com/hejijunhao/statusreport/internal/provider/openai"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	v          = config.NewViper()
	cfg        config.Config
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "statusreport",
	Short: "Reliability reports from public status pages",
	Long: "statusreport fetches a company's status page incident history, classifies\n" +
		"each incident into a reliability category and reports trends and peer comparisons.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return errs.Configf("read config %s: %v", configFile, err)
			}
		}
		cfg = config.FromViper(v)
		logging.Init(cfg.LogJSON, logging.ParseLevel(cfg.LogLevel))
		return cfg.Validate()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.String("log-level", "info", "debug, info, warn or error")
	pf.Bool("log-json", false, "log as JSON on stderr")
	pf.String("store", "", "SQLite file for feedback and snapshots (empty: in memory)")

	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.json", pf.Lookup("log-json"))
	_ = v.BindPFlag("store.path", pf.Lookup("store"))

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(adaptersCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.Version = version
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode distinguishes bad input from an empty history so schedulers
// can tell them apart.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errs.ErrConfig):
		return 2
	case errors.Is(err, errs.ErrNoIncidents):
		return 3
	default:
		return 1
	}
}
