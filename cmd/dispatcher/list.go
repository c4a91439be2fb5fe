package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/goran-ethernal/ChainDispatch/internal/config"
	"github.com/goran-ethernal/ChainDispatch/pkg/registry"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured events",
	Long:  `List every configured contract event with its topic id and the networks it is bound to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "INDEXER\tEVENT\tTOPIC ID\tNETWORKS\tIN ORDER")

		for _, contract := range cfg.Contracts {
			abiJSON, err := os.ReadFile(contract.ABI)
			if err != nil {
				return fmt.Errorf("contract %s: failed to read abi: %w", contract.Name, err)
			}

			parsed, err := registry.ParseABI(string(abiJSON))
			if err != nil {
				return fmt.Errorf("contract %s: %w", contract.Name, err)
			}

			networks := make([]string, 0, len(contract.Details))
			for _, detail := range contract.Details {
				networks = append(networks, detail.Network)
			}

			for _, event := range contract.Events {
				abiEvent, ok := parsed.Events[event.Name]
				if !ok {
					return fmt.Errorf("contract %s: %w: %s", contract.Name, registry.ErrUnknownEvent, event.Name)
				}

				fmt.Fprintf(w, "%s\t%s::%s\t%s\t%s\t%t\n",
					contract.GetIndexerName(),
					contract.Name, event.Name,
					abiEvent.ID.Hex(),
					strings.Join(networks, ","),
					event.IndexInOrder,
				)
			}
		}

		return w.Flush()
	},
}
