package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/fisc-engine/legislation"
	"github.com/warp/fisc-engine/periods"
)

var (
	inspectSystem string
	parameterAt   string
)

var variablesCmd = &cobra.Command{
	Use:   "variables",
	Short: "List the variables of a system",
	Long: `Lists every variable of the reference or of a reform stack with its
entity, period policy and number of dated formulas (0 for inputs).

Examples:
  fisc variables
  fisc variables --system=plfr2014`,
	Args: cobra.NoArgs,
	RunE: runVariables,
}

var parameterCmd = &cobra.Command{
	Use:   "parameter <path>",
	Short: "Resolve a legislation item at an instant",
	Long: `Prints the value of a parameter, the brackets of a scale or the children
of a node, at --at (default: today).

Examples:
  fisc parameter ir.decote.seuil --at=2013-06-01
  fisc parameter ir.bareme --system=ir2007 --at=2013-01-01`,
	Args: cobra.ExactArgs(1),
	RunE: runParameter,
}

func init() {
	variablesCmd.Flags().StringVar(&inspectSystem, "system", "", "reform stack, comma separated")
	parameterCmd.Flags().StringVar(&inspectSystem, "system", "", "reform stack, comma separated")
	parameterCmd.Flags().StringVar(&parameterAt, "at", "", "instant, YYYY-MM-DD")
}

func runVariables(cmd *cobra.Command, args []string) error {
	_, logger, ref, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sys, err := resolveSystem(ref, inspectSystem)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-36s %-14s %-7s %s\n", "VARIABLE", "ENTITY", "POLICY", "FORMULAS")
	for _, v := range sys.Variables() {
		fmt.Fprintf(out, "%-36s %-14s %-7s %d\n", v.Name, v.Entity, v.Policy, v.Formulas)
	}
	return nil
}

func runParameter(cmd *cobra.Command, args []string) error {
	_, logger, ref, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sys, err := resolveSystem(ref, inspectSystem)
	if err != nil {
		return err
	}
	at := periods.FromTime(time.Now())
	if parameterAt != "" {
		if at, err = periods.ParseInstant(parameterAt); err != nil {
			return err
		}
	}

	path := args[0]
	tree := sys.Legislation()
	item, err := tree.Lookup(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch it := item.(type) {
	case *legislation.Parameter:
		v, err := tree.Resolve(path, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s at %s = %s\n", path, at, v)
	case *legislation.Scale:
		scale, err := tree.ResolveScale(path, at)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s at %s\n", path, at)
		for _, b := range scale.Brackets {
			fmt.Fprintf(out, "  from %-12s rate %s\n", b.Threshold, b.Rate)
		}
	case *legislation.Node:
		fmt.Fprintf(out, "%s: %s\n", path, it.Description)
		for _, name := range it.Names() {
			fmt.Fprintf(out, "  %s (%s)\n", name, it.Children[name].Kind())
		}
	}
	return nil
}
