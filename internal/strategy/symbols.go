package strategy

// KnownSymbolSet builds the set of symbols a decision's symbol is checked against during
// validation — the union of the current candidate and position sets, since a strategy program
// may legitimately emit a decision for either (spec §4.6: "symbol not recognized -> drop").
func KnownSymbolSet(candidates []CandidateRecord, positions []PositionRecord) map[string]bool {
	set := make(map[string]bool, len(candidates)+len(positions))
	for _, c := range candidates {
		set[c.Symbol] = true
	}
	for _, p := range positions {
		set[p.Symbol] = true
	}
	return set
}
