package cli

import (
	"io"
)

func newScanCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "scan",
		Description: "Scan installed plugins and report conflicts, overlaps and rankings",
		Flags:       newFlagSet("scan", out),
	}
	flags := addCommonFlags(cmd.Flags)

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		rt, err := flags.runtime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := commandContext()
		defer cancel()

		res, err := rt.App.RunFullScan(ctx)
		if err != nil {
			return err
		}
		return printResult(out, res, flags.asJSON)
	}

	return cmd
}
