package resolver

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// rssFeed models the minimal slice of an RSS 2.0 search feed the resolver
// needs: item links in document order.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []struct {
			Title string `xml:"title"`
			Link  string `xml:"link"`
		} `xml:"item"`
	} `xml:"channel"`
}

// feedLinks extracts up to budget item links from an RSS payload.
func feedLinks(body []byte, budget int) ([]string, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("unmarshal rss feed: %w", err)
	}
	links := make([]string, 0, len(feed.Channel.Items))
	for _, item := range feed.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		links = append(links, link)
		if len(links) >= budget {
			break
		}
	}
	return links, nil
}
