package game

// Classify folds a raw rolled number into its tagged result type. Total over
// the whole byte range: values outside the two valid sides and the two
// sentinels classify as unknown instead of failing.
func Classify(rolled uint8) ResultType {
	switch rolled {
	case RolledForceStopped:
		return ResultForceStopped
	case RolledRecovered:
		return ResultRecovered
	case uint8(SideHeads), uint8(SideTails):
		return ResultNormal
	}
	return ResultUnknown
}

// IsWin reports whether a rolled number is a winning normal outcome for the
// chosen number. Sentinel and unknown rolls never win, even when the raw
// values happen to match.
func IsWin(rolled, chosen uint8) bool {
	return Classify(rolled) == ResultNormal && rolled == chosen
}

// ClassifyRecord derives the view entry for one raw history record.
func ClassifyRecord(r BetRecord) Entry {
	result := Classify(r.RolledNumber)
	return Entry{
		Timestamp:    r.Timestamp,
		ChosenNumber: r.ChosenNumber,
		RolledNumber: r.RolledNumber,
		Amount:       r.Amount,
		Payout:       r.Payout,
		Result:       result,
		IsWin:        result == ResultNormal && r.RolledNumber == r.ChosenNumber,
	}
}

// amountPrefixLen is how many leading characters of the base-unit amount
// string take part in dedup matching. Comparing only the first 5 characters
// absorbs rounding representation differences between the status and history
// reads. A heuristic, not an exact comparison; see DESIGN.md.
const amountPrefixLen = 5

// SameLogicalAmount reports whether two base-unit amounts refer to the same
// logical bet under the prefix tolerance.
func SameLogicalAmount(a, b string) bool {
	if a == b {
		return true
	}
	if len(a) > amountPrefixLen {
		a = a[:amountPrefixLen]
	}
	if len(b) > amountPrefixLen {
		b = b[:amountPrefixLen]
	}
	return a == b
}
