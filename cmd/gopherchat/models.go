package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/chat"
)

func modelsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List known models",
		RunE: func(cmd *cobra.Command, args []string) error {
			models := chat.DefaultCatalog().Models()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(models)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPROVIDER\tMAX TOKENS\tAVAILABLE")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", m.ID, m.Name, m.Provider, m.MaxTokens, m.Available)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
