package game

import (
	"math/big"
	"sort"
	"time"
)

// MergeView builds the deduplicated, newest-first view from a status
// snapshot and a raw history fetch. Either input may be nil when the
// corresponding fetch failed; the caller passes its last cached copy instead.
//
// A synthetic pending entry is prepended for an active game with a chosen
// side, unless the history already contains a record matching on
// (timestamp, chosenNumber, amount-prefix) — the same logical bet must never
// appear twice.
func MergeView(status *GameStatus, history []BetRecord, isNewUser bool) MergedView {
	entries := make([]Entry, 0, len(history)+1)
	for _, r := range history {
		entries = append(entries, ClassifyRecord(r))
	}

	// Newest first. User-facing ordering contract.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp > entries[j].Timestamp
	})

	hasActive := status != nil && status.IsActive
	if hasActive && status.ChosenSide.Valid() {
		pending := Entry{
			Timestamp:    status.LastPlayTimestamp,
			ChosenNumber: uint8(status.ChosenSide),
			Amount:       status.BetAmount,
			Result:       ResultPending,
			Pending:      true,
		}
		if !containsLogicalBet(entries, pending) {
			entries = append([]Entry{pending}, entries...)
		}
	}

	return MergedView{
		Entries:       entries,
		IsNewUser:     isNewUser,
		HasActiveGame: hasActive,
		UpdatedAt:     time.Now(),
	}
}

func containsLogicalBet(entries []Entry, pending Entry) bool {
	for _, e := range entries {
		if e.Pending {
			continue
		}
		if e.Timestamp != pending.Timestamp || e.ChosenNumber != pending.ChosenNumber {
			continue
		}
		if SameLogicalAmount(amountString(e.Amount), amountString(pending.Amount)) {
			return true
		}
	}
	return false
}

func amountString(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}
