package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"brokereye/app/groups"
)

// groupView is the printable form of a group
type groupView struct {
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	IDs       []string  `json:"ids,omitempty"`
	From      *int64    `json:"from,omitempty"`
	To        *int64    `json:"to,omitempty"`
	Revision  uint64    `json:"revision"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toGroupView(g groups.Group) groupView {
	v := groupView{Name: g.Name, Kind: g.Kind.String(), Revision: g.Revision, UpdatedAt: g.UpdatedAt}
	if g.Kind == groups.KindRange {
		from, to := g.Range.From, g.Range.To
		v.From, v.To = &from, &to
	} else {
		v.IDs = g.IDs
	}
	return v
}

func (v groupView) members() string {
	if v.From != nil {
		return fmt.Sprintf("%d-%d", *v.From, *v.To)
	}
	return strings.Join(v.IDs, ",")
}

func newGroupsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "groups",
		Aliases: []string{"group"},
		Short:   "Manage named login groups",
	}
	cmd.AddCommand(
		newGroupsListCmd(a),
		newGroupsShowCmd(a),
		newGroupsCreateCmd(a),
		newGroupsCreateRangeCmd(a),
		newGroupsUpdateCmd(a),
		newGroupsDeleteCmd(a),
	)
	return cmd
}

func (a *app) printGroups(gs []groups.Group) error {
	views := make([]groupView, len(gs))
	for i, g := range gs {
		views[i] = toGroupView(g)
	}
	if a.output == "json" {
		return printJSON(a.out, views)
	}
	rows := make([][]string, len(views))
	for i, v := range views {
		rows[i] = []string{v.Name, v.Kind, v.members(), strconv.FormatUint(v.Revision, 10)}
	}
	return printTable(a.out, []string{"NAME", "KIND", "MEMBERS", "REVISION"}, rows)
}

func newGroupsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			return a.printGroups(store.Groups())
		},
	}
}

func newGroupsShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			g, err := store.Get(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return a.printGroups([]groups.Group{g})
		},
	}
}

// splitIDs accepts ids separated by commas or whitespace
func splitIDs(args []string) []string {
	var ids []string
	for _, arg := range args {
		ids = append(ids, strings.FieldsFunc(arg, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t' || r == '\n'
		})...)
	}
	return ids
}

func newGroupsCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name> <id>...",
		Short: "Create a manual group from explicit logins",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			if !store.CreateGroup(args[0], splitIDs(args[1:])) {
				return fmt.Errorf("group %q not created: the name is taken or no usable ids were given", args[0])
			}
			g, _ := store.Get(args[0])
			return a.printGroups([]groups.Group{g})
		},
	}
}

func newGroupsCreateRangeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create-range <name> <from> <to>",
		Short: "Create a group covering an inclusive login range",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			if !store.CreateRangeGroup(args[0], args[1], args[2]) {
				return fmt.Errorf("group %q not created: the name is taken or the range %s-%s is invalid", args[0], args[1], args[2])
			}
			g, _ := store.Get(args[0])
			return a.printGroups([]groups.Group{g})
		},
	}
}

func newGroupsUpdateCmd(a *app) *cobra.Command {
	var (
		rename string
		ids    []string
		from   string
		to     string
	)
	cmd := &cobra.Command{
		Use:   "update <name>",
		Short: "Rename a group or replace its members",
		Long: "Rename a group or replace its members. Passing --ids makes it a manual group, " +
			"--from/--to make it a range group. Views whose active filter is the group follow a rename.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(ids) > 0 && (from != "" || to != "") {
				return fmt.Errorf("--ids and --from/--to are mutually exclusive")
			}
			if (from == "") != (to == "") {
				return fmt.Errorf("--from and --to must be given together")
			}
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			cur, err := store.Get(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			newName := cur.Name
			if rename != "" {
				newName = rename
			}

			var (
				newIDs []string
				rng    *groups.Range
			)
			switch {
			case len(ids) > 0:
				newIDs = splitIDs(ids)
			case from != "":
				r, ok := groups.ParseRange(from, to)
				if !ok {
					return fmt.Errorf("invalid range %s-%s", from, to)
				}
				rng = &r
			}

			if !store.UpdateGroup(cur.Name, newName, newIDs, rng) {
				return fmt.Errorf("group %q not updated: %q may already exist", cur.Name, newName)
			}
			if err := a.saveActiveFilters(); err != nil {
				return err
			}
			g, _ := store.Get(newName)
			return a.printGroups([]groups.Group{g})
		},
	}
	cmd.Flags().StringVar(&rename, "rename", "", "New group name")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Replace members with these logins")
	cmd.Flags().StringVar(&from, "from", "", "Range start (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Range end (inclusive)")
	return cmd
}

func newGroupsDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a group and clear it from every view",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.groupStore(cmd.Context())
			if err != nil {
				return err
			}
			if !store.DeleteGroup(args[0]) {
				return fmt.Errorf("%s: %w", args[0], groups.ErrNotFound)
			}
			if err := a.saveActiveFilters(); err != nil {
				return err
			}
			if a.output == "json" {
				return printJSON(a.out, map[string]string{"deleted": args[0]})
			}
			fmt.Fprintf(a.out, "deleted group %s\n", args[0])
			return nil
		},
	}
}
