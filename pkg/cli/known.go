package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/platinummonkey/conflictmapper/pkg/bootstrap"
)

func newKnownCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "known",
		Description: "List the known incompatible plugin pairs",
		Flags:       newFlagSet("known", out),
	}
	file := cmd.Flags.String("file", "", "Known conflicts YAML file (default: built-in dataset)")
	asJSON := cmd.Flags.Bool("json", false, "Print JSON instead of text")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		ds, err := bootstrap.LoadDataset(*file)
		if err != nil {
			return err
		}
		if *asJSON {
			return writeJSON(out, ds)
		}

		fmt.Fprintf(out, "Known conflicts (dataset version %d, %d pairs)\n\n", ds.Version, len(ds.Conflicts))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLUGIN A\tPLUGIN B\tVERIFIED\tDESCRIPTION")
		for _, kc := range ds.Conflicts {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", kc.PluginA, kc.PluginB, kc.Verified, kc.Description)
		}
		return tw.Flush()
	}

	return cmd
}
