package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/platinummonkey/conflictmapper/pkg/app"
	"github.com/platinummonkey/conflictmapper/pkg/conflicts"
	"github.com/platinummonkey/conflictmapper/pkg/overlap"
	"github.com/platinummonkey/conflictmapper/pkg/ranking"
	"github.com/platinummonkey/conflictmapper/pkg/snapshot"
)

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printResult prints the outcome of one scan
func printResult(out io.Writer, res *app.Result, asJSON bool) error {
	if asJSON {
		return writeJSON(out, res)
	}

	source := "fresh"
	if res.Cached {
		source = "cached"
	}
	fmt.Fprintf(out, "Scan %d (%s, run %s)\n", res.Snapshot.ID, source, res.Snapshot.RunID)
	if res.ArchiveLocation != "" {
		fmt.Fprintf(out, "Archived to %s\n", res.ArchiveLocation)
	}
	writeReport(out, res.Snapshot, res.Warnings)
	return nil
}

// printSnapshot prints a stored snapshot
func printSnapshot(out io.Writer, snap *snapshot.Snapshot, asJSON bool) error {
	if asJSON {
		return writeJSON(out, snap)
	}

	fmt.Fprintf(out, "Scan %d (run %s)\n", snap.ID, snap.RunID)
	writeReport(out, snap, snap.Warnings)
	return nil
}

func writeReport(out io.Writer, snap *snapshot.Snapshot, warnings []snapshot.Warning) {
	sum := snap.ConflictSummary
	fmt.Fprintf(out, "Taken %s, mode %s, %d plugin(s)\n",
		snap.Timestamp.UTC().Format(time.RFC3339), snap.ScanType, snap.PluginCount)
	fmt.Fprintf(out, "Conflicts: %d (critical %d, high %d, medium %d, low %d)  Overlaps: %d\n",
		sum.Total, sum.Critical, sum.High, sum.Medium, sum.Low, len(snap.Overlaps))

	if len(snap.Conflicts) > 0 {
		fmt.Fprintln(out, "\nConflicts:")
		writeConflicts(out, snap.Conflicts)
	}

	if len(snap.Overlaps) > 0 {
		fmt.Fprintln(out, "\nOverlaps:")
		for _, o := range snap.Overlaps {
			fmt.Fprintf(out, "  %s: %s (redundancy %.2f)\n",
				o.CapabilityTag, strings.Join(o.MemberPluginIDs, ", "), o.RedundancyScore)
			if o.Recommendation != "" {
				fmt.Fprintf(out, "    %s\n", o.Recommendation)
			}
			if alts := overlap.Alternatives(o.CapabilityTag); len(alts) > 0 {
				names := make([]string, len(alts))
				for i, a := range alts {
					names[i] = a.Name
				}
				fmt.Fprintf(out, "    Popular single choices: %s\n", strings.Join(names, ", "))
			}
		}
	}

	if len(snap.Ranked) > 0 {
		fmt.Fprintln(out, "\nRanking:")
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, r := range snap.Ranked {
			fmt.Fprintf(tw, "  %d.\t%s\t(%s)\t%.1f\t%s\n", r.Rank, r.Name, r.PluginID, r.Score, r.Recommendation)
		}
		tw.Flush()
	}

	if actions := ranking.PriorityActions(snap.Ranked); len(actions) > 0 {
		fmt.Fprintln(out, "\nPriority actions:")
		for _, a := range actions {
			fmt.Fprintf(out, "  [%s] %s %s: %s (score %.1f)\n", a.Priority, a.Action, a.Name, a.Reason, a.Score)
		}
	}

	if len(warnings) > 0 {
		fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			if w.PluginID != "" {
				fmt.Fprintf(out, "  %s %s: %s\n", w.Code, w.PluginID, w.Message)
			} else {
				fmt.Fprintf(out, "  %s: %s\n", w.Code, w.Message)
			}
		}
	}
}

// printPluginConflicts prints the records of snap that involve pluginID
func printPluginConflicts(out io.Writer, snap *snapshot.Snapshot, pluginID string, asJSON bool) error {
	records := conflicts.ForPlugin(snap.Conflicts, pluginID)
	if asJSON {
		if records == nil {
			records = []conflicts.ConflictRecord{}
		}
		return writeJSON(out, records)
	}

	fmt.Fprintf(out, "Scan %d: %d conflict(s) involving %s\n", snap.ID, len(records), pluginID)
	if len(records) > 0 {
		writeConflicts(out, records)
	}
	return nil
}

func writeConflicts(out io.Writer, records []conflicts.ConflictRecord) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, c := range records {
		hook := c.HookName
		if hook == "" {
			hook = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n",
			strings.ToUpper(c.Severity.String()), c.Type, hook, strings.Join(c.PluginIDs, ", "), c.Description)
	}
	tw.Flush()
}

// printSummaries prints a scan listing
func printSummaries(out io.Writer, list []snapshot.Summary, asJSON bool) error {
	if asJSON {
		if list == nil {
			list = []snapshot.Summary{}
		}
		return writeJSON(out, list)
	}

	if len(list) == 0 {
		fmt.Fprintln(out, "No scans recorded yet")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTAKEN\tMODE\tPLUGINS\tCONFLICTS\tOVERLAPS")
	for _, s := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			s.ID, s.Timestamp.UTC().Format(time.RFC3339), s.ScanType, s.PluginCount, s.ConflictCount, s.OverlapCount)
	}
	return tw.Flush()
}
