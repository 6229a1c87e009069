package analytics

import (
	"context"
	"fmt"

	"github.com/coopfin/backoffice/internal/ledger"
)

// MaxNameBatch is the largest code set sent in one account-name lookup.
const MaxNameBatch = 10

// AccountNameFetcher resolves display names for account codes.
type AccountNameFetcher interface {
	FetchAccountNames(ctx context.Context, codes []string) ([]ledger.AccountName, error)
}

// ResolveAccountNames deduplicates codes, queries them in batches of at most
// batchSize (capped at MaxNameBatch) and merges the answers. The first name seen for a
// code wins.
func ResolveAccountNames(ctx context.Context, fetcher AccountNameFetcher, codes []string, batchSize int) (map[string]string, error) {
	if batchSize <= 0 || batchSize > MaxNameBatch {
		batchSize = MaxNameBatch
	}
	names := make(map[string]string)
	if fetcher == nil {
		return names, nil
	}
	for _, batch := range ledger.Chunk(ledger.UniqueCodes(codes), batchSize) {
		found, err := fetcher.FetchAccountNames(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("analytics: account names: %w", err)
		}
		for _, n := range found {
			if _, ok := names[n.Code]; ok {
				continue
			}
			names[n.Code] = n.Name
		}
	}
	return names, nil
}
