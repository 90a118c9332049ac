package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"
)

func newLatestCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "latest",
		Description: "Show the most recent stored scan",
		Flags:       newFlagSet("latest", out),
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

		snap, err := rt.App.GetLatestSnapshot(ctx)
		if err != nil {
			return err
		}
		if snap == nil {
			fmt.Fprintln(out, "No scans recorded yet")
			return nil
		}
		return printSnapshot(out, snap, flags.asJSON)
	}

	return cmd
}

func newShowCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "show",
		Description: "Show a stored scan by id",
		Flags:       newFlagSet("show", out),
	}
	flags := addCommonFlags(cmd.Flags)
	id := cmd.Flags.Int64("id", 0, "Scan id (may also be given as the first argument)")
	pluginID := cmd.Flags.String("plugin", "", "Only show conflicts involving this plugin id")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *id == 0 && cmd.Flags.NArg() > 0 {
			v, err := strconv.ParseInt(cmd.Flags.Arg(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid scan id: %s", cmd.Flags.Arg(0))
			}
			*id = v
		}
		if *id <= 0 {
			return fmt.Errorf("scan id is required")
		}

		rt, err := flags.runtime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := commandContext()
		defer cancel()

		snap, err := rt.App.GetSnapshot(ctx, *id)
		if err != nil {
			return err
		}
		if snap == nil {
			return fmt.Errorf("scan %d not found", *id)
		}
		if *pluginID != "" {
			return printPluginConflicts(out, snap, *pluginID, flags.asJSON)
		}
		return printSnapshot(out, snap, flags.asJSON)
	}

	return cmd
}

func newListCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "list",
		Description: "List stored scans, newest first",
		Flags:       newFlagSet("list", out),
	}
	flags := addCommonFlags(cmd.Flags)
	limit := cmd.Flags.Int("limit", 20, "Maximum number of scans")
	offset := cmd.Flags.Int("offset", 0, "Number of scans to skip")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *limit <= 0 {
			return fmt.Errorf("limit must be positive")
		}

		rt, err := flags.runtime()
		if err != nil {
			return err
		}
		defer rt.Close()

		ctx, cancel := commandContext()
		defer cancel()

		list, err := rt.App.ListSnapshots(ctx, *limit, *offset)
		if err != nil {
			return err
		}
		return printSummaries(out, list, flags.asJSON)
	}

	return cmd
}

func newPruneCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "prune",
		Description: "Delete stored scans older than a given age",
		Flags:       newFlagSet("prune", out),
	}
	flags := addCommonFlags(cmd.Flags)
	olderThan := cmd.Flags.Duration("older-than", 0, "Age cutoff, e.g. 720h (default: configured retention)")

	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}

		rt, err := flags.runtime()
		if err != nil {
			return err
		}
		defer rt.Close()

		age := *olderThan
		if age == 0 {
			age = rt.Config.Storage.Retention
		}
		if age <= 0 {
			return fmt.Errorf("older-than must be positive")
		}

		ctx, cancel := commandContext()
		defer cancel()

		cutoff := time.Now().Add(-age)
		n, err := rt.App.Prune(ctx, cutoff)
		if err != nil {
			return err
		}

		if flags.asJSON {
			return writeJSON(out, map[string]interface{}{
				"removed":    n,
				"older_than": cutoff.UTC(),
			})
		}
		fmt.Fprintf(out, "Removed %d scan(s) taken before %s\n", n, cutoff.UTC().Format(time.RFC3339))
		return nil
	}

	return cmd
}

func newStatsCommand(out io.Writer) *Command {
	cmd := &Command{
		Name:        "stats",
		Description: "Show aggregate statistics over stored scans",
		Flags:       newFlagSet("stats", out),
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

		stats, err := rt.App.Stats(ctx)
		if err != nil {
			return err
		}
		if flags.asJSON {
			return writeJSON(out, stats)
		}

		fmt.Fprintf(out, "Total scans:        %d\n", stats.TotalScans)
		fmt.Fprintf(out, "Average conflicts:  %.1f\n", stats.AverageConflicts)
		fmt.Fprintf(out, "Critical conflicts: %d\n", stats.CriticalConflicts)
		if stats.LastScanAt != nil {
			fmt.Fprintf(out, "Last scan:          %s\n", stats.LastScanAt.UTC().Format(time.RFC3339))
		} else {
			fmt.Fprintf(out, "Last scan:          never\n")
		}
		return nil
	}

	return cmd
}
