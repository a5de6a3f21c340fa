package feed

import "github.com/qepting91/reelfeed/internal/domain"

// merge builds a new slice: pinned posts first, flagged, then the paged
// posts in fetch order. Duplicates across pages are kept.
func merge(pinned, paged []domain.Post) []domain.Post {
	out := make([]domain.Post, 0, len(pinned)+len(paged))
	for _, p := range pinned {
		p.IsPinned = true
		out = append(out, p)
	}
	return append(out, paged...)
}

func interactionsOf(posts []domain.Post) domain.Interactions {
	in := domain.Interactions{PlayCounts: make(map[string]int)}
	for _, p := range posts {
		if p.Liked {
			in.LikedIDs = append(in.LikedIDs, p.ID)
		}
		if p.Bookmarked {
			in.BookmarkedIDs = append(in.BookmarkedIDs, p.ID)
		}
		if p.Plays > 0 {
			in.PlayCounts[p.ID] = p.Plays
		}
	}
	return in
}
