// Package feeds manages RSS subscriptions that supply candidate article
// URLs to the conversion pipeline.
package feeds

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"linkcast/internal/cast"
)

// GofeedParser fetches and parses remote feed documents.
type GofeedParser struct {
	parser *gofeed.Parser
}

// NewParser builds a parser with the given user agent and HTTP timeout.
func NewParser(userAgent string, timeout time.Duration) *GofeedParser {
	p := gofeed.NewParser()
	if userAgent != "" {
		p.UserAgent = userAgent
	}
	if timeout > 0 {
		p.Client = &http.Client{Timeout: timeout}
	}
	return &GofeedParser{parser: p}
}

// Parse fetches the feed and maps it to the domain representation.
// Entries without a link are dropped.
func (p *GofeedParser) Parse(ctx context.Context, url string) (cast.FeedInfo, error) {
	feed, err := p.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return cast.FeedInfo{}, fmt.Errorf("parse feed %s: %w", url, err)
	}

	info := cast.FeedInfo{
		Title:       strings.TrimSpace(feed.Title),
		Description: strings.TrimSpace(feed.Description),
	}
	if feed.UpdatedParsed != nil {
		info.Updated = feed.UpdatedParsed
	} else if feed.PublishedParsed != nil {
		info.Updated = feed.PublishedParsed
	}
	for _, item := range feed.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		info.Entries = append(info.Entries, cast.FeedEntry{
			Title: strings.TrimSpace(item.Title),
			Link:  link,
		})
	}
	return info, nil
}

var _ cast.FeedParser = (*GofeedParser)(nil)
