package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"brokereye/app/aggregate"
	"brokereye/app/interfaces"
	"brokereye/app/query"
	"brokereye/app/view"
)

// viewFlags are shared by "view" and "stats"
type viewFlags struct {
	consumer     string
	numeric      []string
	text         []string
	values       []string
	scope        string
	search       string
	searchFields []string
	synonyms     []string
	sort         string
	limit        int
	noDedup      bool
	jsonPath     string
	sheet        string
	noHeader     bool
	pnlSign      string
	metrics      bool
}

func (f *viewFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.consumer, "view", "accounts", "View whose active group applies")
	fs.StringArrayVar(&f.numeric, "num", nil, "Numeric filter field:op:value (op: eq ne lt lte gt gte between)")
	fs.StringArrayVar(&f.text, "text", nil, "Text filter field:op:needle (op: eq ne startswith endswith contains notcontains)")
	fs.StringArrayVar(&f.values, "in", nil, "Value filter field=v1,v2")
	fs.StringVar(&f.scope, "scope", "", "Restrict to field=v1,v2 before any other filter")
	fs.StringVarP(&f.search, "search", "s", "", "Search across fields (AND, OR, NOT, quotes, parentheses)")
	fs.StringSliceVar(&f.searchFields, "search-fields", nil, "Fields searched (default all)")
	fs.StringArrayVar(&f.synonyms, "synonym", nil, "Search boolean synonyms field=yes/no")
	fs.StringVar(&f.sort, "sort", "", "Sort column, optionally column:desc")
	fs.IntVar(&f.limit, "limit", 0, "Maximum records returned (0 for all)")
	fs.BoolVar(&f.noDedup, "no-dedup", false, "Keep duplicate logins")
	fs.StringVar(&f.jsonPath, "json-path", "", "JSONPath to the record array in JSON input")
	fs.StringVar(&f.sheet, "sheet", "", "XLSX sheet to load")
	fs.BoolVar(&f.noHeader, "no-header", false, "Input has no header row")
	fs.StringVar(&f.pnlSign, "pnl-sign", "", "PnL sign convention (as_reported, negated)")
	fs.BoolVar(&f.metrics, "metrics", false, "Print worker and cache metrics to stderr")
}

func (f *viewFlags) query() (view.Query, error) {
	q := view.Query{
		Consumer:     f.consumer,
		Search:       f.search,
		SearchFields: f.searchFields,
		Sort:         parseSort(f.sort),
		Limit:        f.limit,
		SkipDedup:    f.noDedup,
	}
	if f.scope != "" {
		cb, err := parseCheckboxFilter(f.scope)
		if err != nil {
			return q, fmt.Errorf("--scope: %w", err)
		}
		q.ScopeField = cb.Column()
		q.ScopeValues = cb.(query.CheckboxFilter).Allowed
	}
	parsers := []struct {
		specs []string
		parse func(string) (query.ColumnFilter, error)
	}{
		{f.numeric, parseNumericFilter},
		{f.text, parseTextFilter},
		{f.values, parseCheckboxFilter},
	}
	for _, p := range parsers {
		for _, spec := range p.specs {
			cf, err := p.parse(spec)
			if err != nil {
				return q, err
			}
			q.Filters = append(q.Filters, cf)
		}
	}
	for _, s := range f.synonyms {
		syn, err := parseSynonym(s)
		if err != nil {
			return q, err
		}
		q.Synonyms = append(q.Synonyms, syn)
	}
	return q, nil
}

// evaluate loads the source and runs the query with totals
func (a *app) evaluate(cmd *cobra.Command, path string, f *viewFlags) (*interfaces.Dataset, *view.Result, error) {
	q, err := f.query()
	if err != nil {
		return nil, nil, err
	}
	q.Progress = query.LogProgressCallback(a.logger)
	stats, err := a.statsOptions(f.pnlSign)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	ds, err := a.load(ctx, path, f.jsonPath, f.sheet, f.noHeader)
	if err != nil {
		return nil, nil, err
	}
	engine, err := a.viewEngine(ctx, ds, stats)
	if err != nil {
		return nil, nil, err
	}
	res, err := engine.Evaluate(ctx, ds, q)
	if err != nil {
		return nil, nil, err
	}
	if f.metrics {
		if err := a.writeMetrics(cmd.ErrOrStderr()); err != nil {
			return nil, nil, err
		}
	}
	return ds, res, nil
}

func (a *app) writeMetrics(w io.Writer) error {
	if a.registry == nil {
		return nil
	}
	mfs, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// viewOutput is the JSON form of a view
type viewOutput struct {
	Source   string             `json:"source"`
	Fields   []string           `json:"fields"`
	Records  []map[string]any   `json:"records"`
	Total    int64              `json:"total"`
	Group    string             `json:"group,omitempty"`
	Mode     view.Mode          `json:"mode"`
	Cached   bool               `json:"cached"`
	Dedup    *query.DedupReport `json:"dedup,omitempty"`
	Totals   *aggregate.Totals  `json:"totals,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
}

func newViewCmd(a *app) *cobra.Command {
	f := &viewFlags{}
	var columns []string
	cmd := &cobra.Command{
		Use:   "view <file-or-directory>",
		Short: "Filter, search and sort a record set",
		Long: "Loads CSV, XLSX or JSON (optionally gzip, bzip2 or xz compressed, or a directory of them), " +
			"applies the view's active group, the column filters and the search, drops duplicate logins and sorts.",
		Example: `  brokereye view accounts.csv --num balance:gt:1000 --sort equity:desc
  brokereye view exports/ --in group=vip,pro --search '"margin call" OR stopout'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, res, err := a.evaluate(cmd, args[0], f)
			if err != nil {
				return err
			}
			fields := res.Fields
			if len(columns) > 0 {
				fields = columns
			}
			if a.output == "json" {
				out := viewOutput{
					Source:   ds.Source,
					Fields:   fields,
					Records:  make([]map[string]any, len(res.Records)),
					Total:    res.Total,
					Group:    res.Group,
					Mode:     res.Mode,
					Cached:   res.Cached,
					Dedup:    res.Dedup,
					Totals:   res.Totals,
					Warnings: ds.Warnings,
				}
				for i, r := range res.Records {
					out.Records[i] = r.Fields
				}
				return printJSON(a.out, out)
			}
			rows := make([][]string, len(res.Records))
			for i, r := range res.Records {
				row := make([]string, len(fields))
				for j, name := range fields {
					v, _ := r.Get(name)
					row[j] = interfaces.ToString(v)
				}
				rows[i] = row
			}
			if err := printTable(a.out, fields, rows); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "\n%d of %d records", len(res.Records), res.Total)
			if res.Group != "" {
				fmt.Fprintf(a.out, " in group %s", res.Group)
			}
			fmt.Fprintln(a.out)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringSliceVar(&columns, "columns", nil, "Columns to print (default all)")
	return cmd
}

func newStatsCmd(a *app) *cobra.Command {
	f := &viewFlags{}
	cmd := &cobra.Command{
		Use:   "stats <file-or-directory>",
		Short: "Total balances, equity and PnL over a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, res, err := a.evaluate(cmd, args[0], f)
			if err != nil {
				return err
			}
			if res.Totals == nil {
				return fmt.Errorf("no totals computed")
			}
			t := *res.Totals
			if a.output == "json" {
				return printJSON(a.out, map[string]any{"totals": t, "mode": res.Mode, "group": res.Group})
			}
			num := func(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }
			rows := [][]string{
				{"accounts", strconv.Itoa(t.Count)},
				{"balance", num(t.Balance)},
				{"credit", num(t.Credit)},
				{"equity", num(t.Equity)},
				{"floating profit", num(t.FloatingProfit)},
				{"daily pnl", num(t.DailyPnL)},
				{"weekly pnl", num(t.WeeklyPnL)},
				{"monthly pnl", num(t.MonthlyPnL)},
				{"lifetime pnl", num(t.LifetimePnL)},
				{"deposits", num(t.Deposits)},
				{"withdrawals", num(t.Withdrawals)},
			}
			return printTable(a.out, []string{"TOTAL", "VALUE"}, rows)
		},
	}
	f.register(cmd)
	return cmd
}
