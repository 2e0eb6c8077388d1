package poller

import (
	"context"
	"fmt"
	"time"

	"smm_boost/internal/fetcher"
	"smm_boost/internal/model"
	"smm_boost/internal/storage"
)

// Baseline is the watermark established for an account.
type Baseline struct {
	LatestPostDate time.Time
	PostsCount     int
}

// EstablishBaseline fetches the account's feed and stores the newest publication
// time as its watermark, so that posts already in the feed never fire actions.
// A feed without dated items gets "now" as the watermark. Sub-second dates are
// rounded up so the stored watermark still covers the newest post.
func (p *Poller) EstablishBaseline(ctx context.Context, account *model.Account) (Baseline, error) {
	feed, err := p.store.GetFeedByAccount(ctx, account.ID)
	if err != nil {
		return Baseline{}, fmt.Errorf("get feed of account %d: %w", account.ID, err)
	}
	src, err := p.feeds.Feeds()
	if err != nil {
		return Baseline{}, err
	}
	posts, err := src.ParseFeed(ctx, feed.URL)
	if err != nil {
		return Baseline{}, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	b := Baseline{LatestPostDate: p.now().UTC().Truncate(time.Second), PostsCount: len(posts)}
	if latest := fetcher.LatestPublished(posts); latest != nil {
		b.LatestPostDate = storage.CeilSecond(latest.UTC())
	}
	if err := storage.Retry(ctx, p.dbRetry, func() error {
		return p.store.SetBaseline(ctx, feed.ID, b.LatestPostDate)
	}); err != nil {
		return Baseline{}, fmt.Errorf("set baseline: %w", err)
	}
	p.log.Info("baseline established", "account_id", account.ID, "feed_id", feed.ID, "posts", b.PostsCount, "watermark", b.LatestPostDate)
	return b, nil
}
