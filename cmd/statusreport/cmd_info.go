package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/provider"
)

var adaptersCmd = &cobra.Command{
	Use:   "adapters",
	Short: "List the registered source adapters",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, k := range connector.Kinds() {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the registered AI providers and whether a key is configured",
	RunE: func(cmd *cobra.Command, _ []string) error {
		for _, name := range provider.Names() {
			state := "no key"
			if cfg.AI.APIKey(name) != "" {
				state = "key set, model " + cfg.AI.Model(name)
			}
			mark := " "
			if name == cfg.AI.Provider {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-10s %s\n", mark, name, state)
		}
		return nil
	},
}
