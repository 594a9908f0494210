package aggregate

import (
	"context"
	"fmt"
	"strings"

	"brokereye/app/interfaces"
)

// SignConvention decides how PnL bucket sums are reported.
type SignConvention string

const (
	// SignAsReported sums the buckets exactly as stored
	SignAsReported SignConvention = "as_reported"
	// SignNegated negates the bucket sums, for feeds that report broker-side PnL
	SignNegated SignConvention = "negated"
)

// ParseSignConvention accepts the setting values; empty means SignAsReported.
func ParseSignConvention(s string) (SignConvention, error) {
	switch SignConvention(strings.ToLower(strings.TrimSpace(s))) {
	case "", SignAsReported:
		return SignAsReported, nil
	case SignNegated:
		return SignNegated, nil
	}
	return "", fmt.Errorf("unknown pnl sign convention %q", s)
}

// FieldMap names the record fields each total is read from.
type FieldMap struct {
	Balance        string `yaml:"balance" json:"balance"`
	Credit         string `yaml:"credit" json:"credit"`
	Equity         string `yaml:"equity" json:"equity"`
	FloatingProfit string `yaml:"floating_profit" json:"floatingProfit"`
	DailyPnL       string `yaml:"daily_pnl" json:"dailyPnL"`
	WeeklyPnL      string `yaml:"weekly_pnl" json:"weeklyPnL"`
	MonthlyPnL     string `yaml:"monthly_pnl" json:"monthlyPnL"`
	LifetimePnL    string `yaml:"lifetime_pnl" json:"lifetimePnL"`
	Deposits       string `yaml:"deposits" json:"deposits"`
	Withdrawals    string `yaml:"withdrawals" json:"withdrawals"`
}

// DefaultFieldMap matches the account feed field names.
func DefaultFieldMap() FieldMap {
	return FieldMap{
		Balance:        "balance",
		Credit:         "credit",
		Equity:         "equity",
		FloatingProfit: "floatingProfit",
		DailyPnL:       "dailyPnL",
		WeeklyPnL:      "weeklyPnL",
		MonthlyPnL:     "monthlyPnL",
		LifetimePnL:    "lifetimePnL",
		Deposits:       "deposits",
		Withdrawals:    "withdrawals",
	}
}

// Options configures Compute. The zero value uses the default field map and
// SignAsReported.
type Options struct {
	Fields FieldMap
	Sign   SignConvention
}

func (o Options) withDefaults() Options {
	def := DefaultFieldMap()
	f := &o.Fields
	for _, p := range []struct {
		dst *string
		def string
	}{
		{&f.Balance, def.Balance},
		{&f.Credit, def.Credit},
		{&f.Equity, def.Equity},
		{&f.FloatingProfit, def.FloatingProfit},
		{&f.DailyPnL, def.DailyPnL},
		{&f.WeeklyPnL, def.WeeklyPnL},
		{&f.MonthlyPnL, def.MonthlyPnL},
		{&f.LifetimePnL, def.LifetimePnL},
		{&f.Deposits, def.Deposits},
		{&f.Withdrawals, def.Withdrawals},
	} {
		if *p.dst == "" {
			*p.dst = p.def
		}
	}
	if o.Sign == "" {
		o.Sign = SignAsReported
	}
	return o
}

// Totals are the summary sums over a record collection.
type Totals struct {
	Balance        float64 `json:"balance"`
	Credit         float64 `json:"credit"`
	Equity         float64 `json:"equity"`
	FloatingProfit float64 `json:"floatingProfit"`
	DailyPnL       float64 `json:"dailyPnL"`
	WeeklyPnL      float64 `json:"weeklyPnL"`
	MonthlyPnL     float64 `json:"monthlyPnL"`
	LifetimePnL    float64 `json:"lifetimePnL"`
	Deposits       float64 `json:"deposits"`
	Withdrawals    float64 `json:"withdrawals"`
	Count          int     `json:"count"`
}

// Add returns the field-wise sum of t and o.
func (t Totals) Add(o Totals) Totals {
	return Totals{
		Balance:        t.Balance + o.Balance,
		Credit:         t.Credit + o.Credit,
		Equity:         t.Equity + o.Equity,
		FloatingProfit: t.FloatingProfit + o.FloatingProfit,
		DailyPnL:       t.DailyPnL + o.DailyPnL,
		WeeklyPnL:      t.WeeklyPnL + o.WeeklyPnL,
		MonthlyPnL:     t.MonthlyPnL + o.MonthlyPnL,
		LifetimePnL:    t.LifetimePnL + o.LifetimePnL,
		Deposits:       t.Deposits + o.Deposits,
		Withdrawals:    t.Withdrawals + o.Withdrawals,
		Count:          t.Count + o.Count,
	}
}

// Compute reduces records to totals in a single pass. Values that do not
// coerce to a number contribute nothing; every non-nil record is counted.
func Compute(records []*interfaces.Record, opts Options) Totals {
	t, _ := ComputeContext(context.Background(), records, opts)
	return t
}

// ComputeContext is Compute with a cancellation check every
// interfaces.ProgressUpdateInterval records.
func ComputeContext(ctx context.Context, records []*interfaces.Record, opts Options) (Totals, error) {
	opts = opts.withDefaults()
	f := opts.Fields

	var t Totals
	for i, r := range records {
		if i > 0 && i%interfaces.ProgressUpdateInterval == 0 {
			if err := ctx.Err(); err != nil {
				return Totals{}, err
			}
		}
		if r == nil {
			continue
		}
		t.Count++
		t.Balance += num(r, f.Balance)
		t.Credit += num(r, f.Credit)
		t.Equity += num(r, f.Equity)
		t.FloatingProfit += num(r, f.FloatingProfit)
		t.DailyPnL += num(r, f.DailyPnL)
		t.WeeklyPnL += num(r, f.WeeklyPnL)
		t.MonthlyPnL += num(r, f.MonthlyPnL)
		t.LifetimePnL += num(r, f.LifetimePnL)
		t.Deposits += num(r, f.Deposits)
		t.Withdrawals += num(r, f.Withdrawals)
	}

	if opts.Sign == SignNegated {
		t.DailyPnL = -t.DailyPnL
		t.WeeklyPnL = -t.WeeklyPnL
		t.MonthlyPnL = -t.MonthlyPnL
		t.LifetimePnL = -t.LifetimePnL
	}
	return t, nil
}

func num(r *interfaces.Record, field string) float64 {
	v, ok := r.Fields[field]
	if !ok {
		return 0
	}
	n, _ := interfaces.ToNumber(v)
	return n
}
