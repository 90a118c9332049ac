package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command writing to stdout
func NewRootCommand() *Command {
	return NewRootCommandWithOutput(os.Stdout)
}

// NewRootCommandWithOutput creates the root command writing to out
func NewRootCommandWithOutput(out io.Writer) *Command {
	root := &Command{
		Name:        "conflictmap",
		Description: "conflictmap - plugin conflict and overlap analysis",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("conflictmap", flag.ContinueOnError),
	}
	root.Flags.SetOutput(out)

	root.Subcommands["scan"] = newScanCommand(out)
	root.Subcommands["latest"] = newLatestCommand(out)
	root.Subcommands["show"] = newShowCommand(out)
	root.Subcommands["list"] = newListCommand(out)
	root.Subcommands["prune"] = newPruneCommand(out)
	root.Subcommands["stats"] = newStatsCommand(out)
	root.Subcommands["known"] = newKnownCommand(out)

	return root
}

// Execute runs the command with os.Args
func (c *Command) Execute() error {
	return c.ExecuteArgs(os.Args[1:])
}

// ExecuteArgs runs the command with the given arguments
func (c *Command) ExecuteArgs(args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	// Check for help flag
	if arg := strings.ToLower(args[0]); arg == "-h" || arg == "--help" || arg == "help" {
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		if err := subcmd.Run(args[1:]); err != nil && !errors.Is(err, flag.ErrHelp) {
			return err
		}
		return nil
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	out := c.Flags.Output()
	fmt.Fprintf(out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-10s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
