// Package pricing implements cost derivation from a per-model price table,
// grounded on the original PRICING_PER_1K table.
package pricing

// Entry holds per-1K token prices for one model.
type Entry struct {
	InputPer1K  float64
	OutputPer1K float64
	CachedPer1K float64
}

// Table maps model name to its Entry. Unknown models are treated as zero cost.
type Table map[string]Entry

// Default is the built-in pricing table for the gateway's mock and
// HTTP-backed model slots.
func Default() Table {
	return Table{
		"mock-1": {InputPer1K: 0.0005, OutputPer1K: 0.0015, CachedPer1K: 0.0001},
		"mock-2": {InputPer1K: 0.003, OutputPer1K: 0.006, CachedPer1K: 0.0005},
	}
}

// Merge layers items on top of base, returning a new table; base is untouched.
func Merge(base Table, items Table) Table {
	merged := make(Table, len(base)+len(items))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range items {
		merged[k] = v
	}
	return merged
}

// Cost computes (prompt/1000)*in + (completion/1000)*out + (cached/1000)*cached.
// A model absent from the table costs zero.
func Cost(table Table, model string, promptTokens, completionTokens, cachedTokens int64) float64 {
	entry, ok := table[model]
	if !ok {
		return 0
	}
	return (float64(promptTokens)/1000)*entry.InputPer1K +
		(float64(completionTokens)/1000)*entry.OutputPer1K +
		(float64(cachedTokens)/1000)*entry.CachedPer1K
}
