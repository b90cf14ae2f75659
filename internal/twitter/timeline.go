package twitter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// TimelineSource fetches timeline pages. *Client implements it.
type TimelineSource interface {
	UserTimeline(ctx context.Context, token, userID, cursor string) (Page, error)
}

// CollectTimeline pages through userID's timeline until it runs out or limit
// IDs have been collected. Pages after the first are spaced by pageInterval.
// On failure the IDs gathered so far are returned with the error.
func CollectTimeline(ctx context.Context, src TimelineSource, token, userID string, limit int, pageInterval time.Duration) ([]string, error) {
	var pacer *rate.Limiter
	if pageInterval > 0 {
		pacer = rate.NewLimiter(rate.Every(pageInterval), 1)
	}

	var ids []string
	cursor := ""
	for {
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return ids, err
			}
		}

		page, err := src.UserTimeline(ctx, token, userID, cursor)
		if err != nil {
			return ids, err
		}
		ids = append(ids, page.IDs...)

		if limit > 0 && len(ids) >= limit {
			return ids[:limit], nil
		}
		if page.NextCursor == "" || len(page.IDs) == 0 {
			return ids, nil
		}
		cursor = page.NextCursor
	}
}
