package structured

// Merge folds several results into one. Values that share a key are
// joined with a single space in input order; blank values are skipped.
// No inputs yield an empty result and a single input is returned as is.
func Merge(results []Result) Result {
	switch len(results) {
	case 0:
		return Result{values: map[string]string{}}
	case 1:
		return results[0]
	}

	var merged Result
	for _, r := range results {
		for _, k := range r.keys {
			v := r.values[k]
			if v == "" {
				continue
			}
			if prev, ok := merged.values[k]; ok {
				merged.values[k] = prev + " " + v
				continue
			}
			merged.Set(k, v)
		}
	}
	if merged.values == nil {
		merged.values = map[string]string{}
	}
	return merged
}
