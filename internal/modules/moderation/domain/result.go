package domain

// Reason tells which rule produced a spam verdict
type Reason struct {
	Rule  string // "pattern" or "banned_word"
	Match string // the pattern or word that hit
}

// Result is a verdict with the rule that caused it, if any
type Result struct {
	Verdict Verdict
	Reason  *Reason
}

// IsSpam is a shortcut for Verdict == VerdictSpam
func (r Result) IsSpam() bool {
	return r.Verdict == VerdictSpam
}

// Stats are running counters of the engine
type Stats struct {
	Checked     uint64 `json:"checked"`
	Spam        uint64 `json:"spam"`
	Whitelisted uint64 `json:"whitelisted"`
	BadPatterns uint64 `json:"bad_patterns"`
}
