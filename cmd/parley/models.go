package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/parley/pkg/inference"
)

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models in the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("models-file")
			if path == "" {
				return errors.New("no --models-file configured")
			}
			catalog, err := inference.LoadCatalog(path)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCONTEXT TOKENS")
			for _, model := range catalog.Models {
				fmt.Fprintf(w, "%s\t%s\t%d\n", model.ID, model.Name, model.ContextTokens)
			}
			return w.Flush()
		},
	}
}
