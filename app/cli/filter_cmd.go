package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newFilterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Select the active group per view",
		Long:  "Each view (accounts, positions, ...) can have one active group. Selections are saved to the settings file.",
	}
	cmd.AddCommand(newFilterSetCmd(a), newFilterGetCmd(a), newFilterClearCmd(a), newFilterListCmd(a))
	return cmd
}

func newFilterSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <view> <group>",
		Short: "Make a group the active filter of a view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			if !store.Registry().SetActiveFilter(args[0], args[1]) {
				return fmt.Errorf("cannot select group %q for view %q: no such group", args[1], args[0])
			}
			if err := a.saveActiveFilters(); err != nil {
				return err
			}
			return a.printSelections(map[string]string{args[0]: args[1]})
		},
	}
}

func newFilterGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <view>",
		Short: "Show the active group of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			name, _ := store.Registry().GetActiveFilter(args[0])
			return a.printSelections(map[string]string{args[0]: name})
		},
	}
}

func newFilterClearCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear <view>",
		Short: "Remove the active group of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			store.Registry().ClearActiveFilter(args[0])
			if err := a.saveActiveFilters(); err != nil {
				return err
			}
			return a.printSelections(map[string]string{args[0]: ""})
		},
	}
}

func newFilterListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every view with an active group",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			return a.printSelections(store.Registry().Snapshot())
		},
	}
}

func (a *app) printSelections(sel map[string]string) error {
	if a.output == "json" {
		return printJSON(a.out, sel)
	}
	views := make([]string, 0, len(sel))
	for v := range sel {
		views = append(views, v)
	}
	sort.Strings(views)
	rows := make([][]string, len(views))
	for i, v := range views {
		g := sel[v]
		if g == "" {
			g = "-"
		}
		rows[i] = []string{v, g}
	}
	return printTable(a.out, []string{"VIEW", "GROUP"}, rows)
}
