package integration

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-assets/internal/accounting"
	"github.com/odyssey-erp/odyssey-assets/internal/fixedassets"
)

func toPostingLines(lines []fixedassets.JournalLine) []accounting.PostingLineInput {
	out := make([]accounting.PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, accounting.PostingLineInput{
			AccountCode: line.AccountCode,
			Debit:       line.Debit.Round(2),
			Credit:      line.Credit.Round(2),
		})
	}
	return out
}

// sameAmounts compares the net debit per account code, ignoring line order.
func sameAmounts(booked []accounting.JournalLine, requested []accounting.PostingLineInput) bool {
	net := make(map[string]decimal.Decimal, len(requested))
	for _, line := range requested {
		net[line.AccountCode] = net[line.AccountCode].Add(line.Debit).Sub(line.Credit)
	}
	for _, line := range booked {
		net[line.AccountCode] = net[line.AccountCode].Sub(line.Debit).Add(line.Credit)
	}
	for _, diff := range net {
		if !diff.Round(2).IsZero() {
			return false
		}
	}
	return true
}
