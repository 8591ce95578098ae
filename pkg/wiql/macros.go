package wiql

import (
	"maps"
	"slices"
	"strings"
)

var dateMacros = map[string]string{
	"today":     "@Today",
	"yesterday": "@Today - 1",

	"last_7_days":   "@Today - 7",
	"last_week":     "@Today - 7",
	"this_week":     "@StartOfWeek",
	"start_of_week": "@StartOfWeek",

	"last_3_days":  "@Today - 3",
	"last_5_days":  "@Today - 5",
	"last_10_days": "@Today - 10",
	"last_14_days": "@Today - 14",
	"last_20_days": "@Today - 20",
	"last_21_days": "@Today - 21",

	"last_30_days":   "@Today - 30",
	"last_month":     "@StartOfMonth - 1",
	"this_month":     "@StartOfMonth",
	"start_of_month": "@StartOfMonth",

	"this_year":     "@StartOfYear",
	"last_year":     "@StartOfYear - 1",
	"start_of_year": "@StartOfYear",

	"last_2_weeks":  "@Today - 14",
	"last_3_months": "@StartOfMonth - 3",
	"last_6_months": "@StartOfMonth - 6",
}

// DateMacro translates a symbolic period name such as "last_7_days" into a
// WIQL date macro expression. Lookup is case-insensitive; unknown or empty
// names report false.
func DateMacro(period string) (string, bool) {
	if period == "" {
		return "", false
	}
	macro, ok := dateMacros[strings.ToLower(period)]
	return macro, ok
}

// PeriodNames returns every name DateMacro recognizes, sorted.
func PeriodNames() []string {
	return slices.Sorted(maps.Keys(dateMacros))
}
