package collector

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/qepting91/reelfeed/internal/config"
	"github.com/qepting91/reelfeed/internal/domain"
)

// Backend bundles what the feed controller and the autoplay coordinator
// talk to. Pinned may be nil. Viewer is the signed-in user, empty for
// anonymous modes.
type Backend struct {
	Feed   domain.FeedSource
	Pinned domain.PinnedSource
	Views  domain.ViewReporter
	Viewer string
}

// NewBackend selects the correct implementation based on COLLECTOR_MODE.
// Modes without a view endpoint fall back to the mock reporter unless Kafka
// is configured.
func NewBackend(cfg *config.Config) (*Backend, error) {
	b := &Backend{}
	sessionID := uuid.NewString()

	switch cfg.CollectorMode {
	case "api":
		ac, err := NewAPIClient(cfg.APIBaseURL, cfg.APIToken, cfg.UserAgent, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		b.Feed, b.Pinned, b.Views = ac, ac, ac
		sessionID = ac.SessionID()
		b.Viewer = ac.ViewerID()
	case "reddit":
		rc, err := NewRedditClient(
			cfg.RedditClientID,
			cfg.RedditClientSecret,
			cfg.RedditUsername,
			cfg.RedditPassword,
			cfg.UserAgent,
			cfg.RedditSubreddit,
			cfg.PageSize,
		)
		if err != nil {
			return nil, err
		}
		b.Feed, b.Pinned = rc, rc
	case "public":
		pc, err := NewPublicClient(cfg.UserAgent, cfg.RedditSubreddit, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		b.Feed, b.Pinned = pc, pc
	case "rss":
		rc, err := NewRSSClient(cfg.RSSURL, cfg.PageSize)
		if err != nil {
			return nil, err
		}
		b.Feed = rc
	case "mock":
		mc := NewMockClient()
		mc.PageSize = cfg.PageSize
		b.Feed, b.Pinned, b.Views = mc, mc, mc
	default:
		return nil, fmt.Errorf("unknown COLLECTOR_MODE: %s (use 'api', 'reddit', 'public', 'rss' or 'mock')", cfg.CollectorMode)
	}

	if cfg.KafkaBrokers != "" {
		b.Views = NewKafkaReporter(cfg.KafkaBrokers, cfg.KafkaTopic, sessionID, b.Viewer)
	}
	if b.Views == nil {
		b.Views = NewMockClient()
	}
	return b, nil
}
