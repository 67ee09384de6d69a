package census

import (
	"sort"

	"github.com/h2a-linkage/internal/debug"
)

// PercentageRecord is one long-format output cell. Value is nil when the
// group denominator is zero or missing, or the numerator itself is missing.
type PercentageRecord struct {
	GeoKey string
	Column string
	Value  *float64
}

// SuffixLess orders suffixes within a group; the first suffix is the
// denominator
type SuffixLess func(a, b string) bool

// LexicalSuffixes puts 001 (the table total) first
func LexicalSuffixes(a, b string) bool { return a < b }

// Aggregation holds percentage cells and the raw cells of excluded variables
type Aggregation struct {
	Percentages []PercentageRecord
	Passthrough []PercentageRecord
	// OutOfRange counts ratios outside [0,1], i.e. a sibling larger than
	// its total. They are kept as computed.
	OutOfRange int
}

// Options tunes ComputePercentages
type Options struct {
	Order    SuffixLess
	Excluded map[string]bool
	Debug    bool
}

type groupKey struct {
	geo    string
	prefix string
}

// aggregator turns one ordered group into output cells
type aggregator func(group []Observation) []PercentageRecord

type aggKind int

const (
	aggRatio aggKind = iota
	aggRaw
)

var aggregators = map[aggKind]aggregator{
	aggRatio: ratio,
	aggRaw:   passthrough,
}

// ComputePercentages groups observations by (geography, prefix) and divides
// every sibling by the group's first suffix. Prefixes, or full variable codes,
// listed in excluded skip the division and are carried through raw.
func ComputePercentages(obs []Observation, order SuffixLess, excluded map[string]bool) (*Aggregation, error) {
	return ComputePercentagesWith(obs, Options{Order: order, Excluded: excluded})
}

// ComputePercentagesWith is ComputePercentages driven by Options
func ComputePercentagesWith(obs []Observation, opts Options) (*Aggregation, error) {
	debug.DebugHeader(opts.Debug, "percentages")
	defer debug.DebugFooter(opts.Debug, "percentages")

	order := opts.Order
	if order == nil {
		order = LexicalSuffixes
	}

	groups := make(map[groupKey][]Observation)
	tags := make(map[groupKey]aggKind)
	for _, o := range obs {
		key, err := NormalizeKey(o.GeoKey)
		if err != nil {
			return nil, err
		}
		o.GeoKey = key

		raw := opts.Excluded[o.Prefix] || opts.Excluded[o.Variable()]
		// excluded variables are grouped per code so they never share a
		// denominator with siblings that are still percentaged
		gk := groupKey{geo: key, prefix: o.Prefix}
		if raw {
			gk.prefix = o.Variable()
			tags[gk] = aggRaw
		} else {
			tags[gk] = aggRatio
		}
		groups[gk] = append(groups[gk], o)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].geo != keys[b].geo {
			return keys[a].geo < keys[b].geo
		}
		return keys[a].prefix < keys[b].prefix
	})

	agg := &Aggregation{}
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(a, b int) bool { return order(group[a].Suffix, group[b].Suffix) })
		for i := 1; i < len(group); i++ {
			if group[i].Suffix == group[i-1].Suffix {
				return nil, &DuplicateGroupKeyError{GeoKey: k.geo, Column: group[i].Variable()}
			}
		}

		kind := tags[k]
		cells := aggregators[kind](group)
		if kind == aggRaw {
			agg.Passthrough = append(agg.Passthrough, cells...)
			continue
		}
		for _, c := range cells {
			if c.Value != nil && (*c.Value < 0 || *c.Value > 1) {
				agg.OutOfRange++
				debug.DebugOutput(opts.Debug, "%s %s: ratio %.4f outside [0,1]", c.GeoKey, c.Column, *c.Value)
			}
		}
		agg.Percentages = append(agg.Percentages, cells...)
	}

	debug.DebugOutput(opts.Debug, "%d groups, %d percentage cells, %d raw cells, %d out of range",
		len(keys), len(agg.Percentages), len(agg.Passthrough), agg.OutOfRange)
	return agg, nil
}

func ratio(group []Observation) []PercentageRecord {
	if len(group) < 2 {
		return nil
	}
	den := group[0].Value
	out := make([]PercentageRecord, 0, len(group)-1)
	for _, o := range group[1:] {
		rec := PercentageRecord{GeoKey: o.GeoKey, Column: o.Variable()}
		if den != nil && *den != 0 && o.Value != nil {
			p := *o.Value / *den
			rec.Value = &p
		}
		out = append(out, rec)
	}
	return out
}

func passthrough(group []Observation) []PercentageRecord {
	out := make([]PercentageRecord, 0, len(group))
	for _, o := range group {
		rec := PercentageRecord{GeoKey: o.GeoKey, Column: o.Variable()}
		if o.Value != nil {
			v := *o.Value
			rec.Value = &v
		}
		out = append(out, rec)
	}
	return out
}
