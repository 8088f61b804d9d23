package store

import (
	"strings"

	"github.com/shopspring/decimal"
)

func splitStrings(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinStrings(vals []string) string {
	return strings.Join(vals, ",")
}

func setFromCSV(csv string) map[string]struct{} {
	vals := splitStrings(csv)
	if len(vals) == 0 {
		return map[string]struct{}{}
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[strings.ToUpper(v)] = struct{}{}
	}
	return out
}

func csvFromSet(set map[string]struct{}) string {
	vals := make([]string, 0, len(set))
	for k := range set {
		vals = append(vals, k)
	}
	return strings.Join(vals, ",")
}

func splitDecimals(csv string) []decimal.Decimal {
	strs := splitStrings(csv)
	if len(strs) == 0 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(strs))
	for _, s := range strs {
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func joinDecimals(vals []decimal.Decimal) string {
	strs := make([]string, len(vals))
	for i, d := range vals {
		strs[i] = d.String()
	}
	return strings.Join(strs, ",")
}
