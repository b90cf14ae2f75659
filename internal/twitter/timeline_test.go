package twitter

import (
	"context"
	"fmt"
	"testing"
)

type pagedSource struct {
	pages   []Page
	failAt  int
	err     error
	cursors []string
}

func (s *pagedSource) UserTimeline(ctx context.Context, token, userID, cursor string) (Page, error) {
	n := len(s.cursors)
	s.cursors = append(s.cursors, cursor)
	if s.err != nil && n == s.failAt {
		return Page{}, s.err
	}
	if n >= len(s.pages) {
		return Page{}, nil
	}
	return s.pages[n], nil
}

func idRange(from, to int) []string {
	var ids []string
	for i := from; i < to; i++ {
		ids = append(ids, fmt.Sprint(i))
	}
	return ids
}

func TestCollectTimeline_FollowsCursor(t *testing.T) {
	src := &pagedSource{pages: []Page{
		{IDs: idRange(0, 100), NextCursor: "c1"},
		{IDs: idRange(100, 150)},
	}}

	ids, err := CollectTimeline(context.Background(), src, "tok", "u", 10_000, 0)
	if err != nil {
		t.Fatalf("CollectTimeline: %v", err)
	}
	if len(ids) != 150 {
		t.Errorf("got %d ids, want 150", len(ids))
	}
	if len(src.cursors) != 2 || src.cursors[0] != "" || src.cursors[1] != "c1" {
		t.Errorf("cursors = %v", src.cursors)
	}
}

func TestCollectTimeline_StopsAtLimit(t *testing.T) {
	src := &pagedSource{pages: []Page{
		{IDs: idRange(0, 100), NextCursor: "c1"},
		{IDs: idRange(100, 200), NextCursor: "c2"},
		{IDs: idRange(200, 300), NextCursor: "c3"},
	}}

	ids, err := CollectTimeline(context.Background(), src, "tok", "u", 150, 0)
	if err != nil {
		t.Fatalf("CollectTimeline: %v", err)
	}
	if len(ids) != 150 || ids[149] != "149" {
		t.Errorf("got %d ids", len(ids))
	}
	if len(src.cursors) != 2 {
		t.Errorf("fetched %d pages, want 2", len(src.cursors))
	}
}

func TestCollectTimeline_Empty(t *testing.T) {
	ids, err := CollectTimeline(context.Background(), &pagedSource{}, "tok", "u", 100, 0)
	if err != nil {
		t.Fatalf("CollectTimeline: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ids = %v", ids)
	}
}

func TestCollectTimeline_ErrorKeepsPartial(t *testing.T) {
	src := &pagedSource{
		pages:  []Page{{IDs: idRange(0, 100), NextCursor: "c1"}},
		failAt: 1,
		err:    &Failure{Kind: RateLimited},
	}

	ids, err := CollectTimeline(context.Background(), src, "tok", "u", 1000, 0)
	if AsFailure(err).Kind != RateLimited {
		t.Fatalf("err = %v, want rate limited", err)
	}
	if len(ids) != 100 {
		t.Errorf("partial ids = %d, want 100", len(ids))
	}
}

func TestCollectTimeline_CancelledWhileWaiting(t *testing.T) {
	src := &pagedSource{pages: []Page{
		{IDs: idRange(0, 100), NextCursor: "c1"},
		{IDs: idRange(100, 200)},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CollectTimeline(ctx, src, "tok", "u", 1000, 1)
	if err == nil {
		t.Fatal("expected context error")
	}
}
