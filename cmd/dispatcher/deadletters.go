package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/goran-ethernal/ChainDispatch/internal/common"
	"github.com/goran-ethernal/ChainDispatch/internal/config"
	"github.com/goran-ethernal/ChainDispatch/internal/deadletter"
	"github.com/goran-ethernal/ChainDispatch/internal/logger"
	"github.com/spf13/cobra"
)

var deadLetterLimit int

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "Inspect batches abandoned after exhausting their delivery attempts",
}

var deadLettersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored dead letters, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openDeadLetters()
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context(), deadLetterLimit)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tINDEXER\tEVENT\tNETWORK\tBLOCKS\tSIZE\tATTEMPTS\tCREATED\tLAST ERROR")
		for _, r := range records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d-%d\t%d\t%d\t%s\t%s\n",
				r.ID, r.IndexerName, r.EventName, r.Network, r.FirstBlock, r.LastBlock,
				r.BatchSize, r.Attempts, r.CreatedAt, r.LastError)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		size, err := store.Size()
		if err != nil {
			return err
		}
		fmt.Printf("\n%d dead letter(s), database size %d bytes\n", len(records), size)

		return nil
	},
}

var deadLettersDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a dead letter once its batch has been handled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id '%s': %w", args[0], err)
		}

		store, err := openDeadLetters()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Delete(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Printf("Deleted dead letter %d\n", id)
		return nil
	},
}

func init() {
	deadLettersListCmd.Flags().IntVarP(&deadLetterLimit, "limit", "l", 0, "maximum number of dead letters to show (0 = all)")
	deadLettersCmd.AddCommand(deadLettersListCmd, deadLettersDeleteCmd)
}

func openDeadLetters() (*deadletter.Store, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DeadLetter == nil || !cfg.DeadLetter.Enabled {
		return nil, fmt.Errorf("dead letters are not enabled in %s", configPath)
	}

	return deadletter.NewStore(cfg.DeadLetter.DB, logger.NewComponentLoggerFromConfig(common.ComponentDeadLetter, cfg.Logging))
}
