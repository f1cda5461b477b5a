package farmer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// discover walks the badge pages and returns every farmable app with
// its hours on record. Page 1 reveals the page count; the rest are
// fetched in parallel. Blacklisted apps are dropped from the result.
func (f *Farmer) discover(ctx context.Context) (map[uint32]float64, error) {
	first, err := f.web.BadgePage(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("fetching badge page 1: %w", err)
	}

	games := make(map[uint32]float64)
	for _, g := range first.Games {
		games[g.AppID] = g.Hours
	}

	if first.Pages > 1 {
		var mu sync.Mutex
		g, gctx := errgroup.WithContext(ctx)
		for page := 2; page <= first.Pages; page++ {
			g.Go(func() error {
				bp, err := f.web.BadgePage(gctx, page)
				if err != nil {
					return fmt.Errorf("fetching badge page %d: %w", page, err)
				}
				mu.Lock()
				defer mu.Unlock()
				for _, game := range bp.Games {
					games[game.AppID] = game.Hours
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for id := range games {
		if f.blacklist[id] {
			f.log.Debug("skipping blacklisted app", "app", id)
			delete(games, id)
		}
	}
	return games, nil
}
