package main

import (
	"fmt"

	"github.com/goran-ethernal/ChainDispatch/internal/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the configuration JSON schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.SchemaJSON()
		if err != nil {
			return err
		}

		fmt.Println(string(data))
		return nil
	},
}
