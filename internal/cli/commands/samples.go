package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/propsheet/internal/catalog"
)

// NewSamplesCommand creates the samples command
func NewSamplesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "samples",
		Short: "List the sample objects that can be inspected",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range catalog.New(0).Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
