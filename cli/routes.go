package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/karloscodes/kour"
)

func routesCmd(load func() (*kour.App, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "List registered routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := load()
			if err != nil {
				return err
			}
			defer app.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "METHOD\tPATH\tSTATUS\tPARAMS")
			for _, r := range app.Routes() {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Method, r.Path, r.Handler.Status, describeParams(r.Handler.Params))
			}
			return w.Flush()
		},
	}
}

// describeParams renders parameters as name:type(source).
func describeParams(params []kour.Param) string {
	if len(params) == 0 {
		return "-"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		name := p.Name
		if name == "" {
			name = "_"
		}
		parts[i] = fmt.Sprintf("%s:%s(%s)", name, p.Type, p.Source)
	}
	return strings.Join(parts, " ")
}
