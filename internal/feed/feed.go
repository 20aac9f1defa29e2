// Package feed exports ideas as RSS and imports them back.
package feed

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/bryan-buckman/ideaboard/internal/model"
)

// Namespace is the XML namespace for idea-specific item fields.
const (
	Namespace = "https://github.com/bryan-buckman/ideaboard/ns/1.0"
	Prefix    = "ideaboard"
)

// RSS represents the root of an RSS 2.0 document.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	NS      string   `xml:"xmlns:ideaboard,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel contains feed metadata and items.
type Channel struct {
	Title         string `xml:"title"`
	Link          string `xml:"link"`
	Description   string `xml:"description"`
	LastBuildDate string `xml:"lastBuildDate,omitempty"`
	Items         []Item `xml:"item"`
}

// Item is a single exported idea.
type Item struct {
	Title       string `xml:"title"`
	GUID        GUID   `xml:"guid"`
	Description string `xml:"description"`
	Category    string `xml:"category,omitempty"` // tagline
	PubDate     string `xml:"pubDate,omitempty"`
	Rating      int    `xml:"ideaboard:rating"`
	Votes       int    `xml:"ideaboard:votes"`
}

// GUID carries the idea id.
type GUID struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// Export generates an RSS document listing ideas in the given order.
func Export(title, link string, ideas []model.Idea, now time.Time) ([]byte, error) {
	doc := RSS{
		Version: "2.0",
		NS:      Namespace,
		Channel: Channel{
			Title:         title,
			Link:          link,
			Description:   fmt.Sprintf("%d startup ideas", len(ideas)),
			LastBuildDate: now.Format(time.RFC1123Z),
		},
	}
	for _, idea := range ideas {
		item := Item{
			Title:       idea.Name,
			GUID:        GUID{IsPermaLink: "false", Value: idea.ID},
			Description: idea.Description,
			Category:    idea.Tagline,
			Rating:      idea.Rating,
			Votes:       idea.Votes,
		}
		if !idea.CreatedAt.IsZero() {
			item.PubDate = idea.CreatedAt.Format(time.RFC1123Z)
		}
		doc.Channel.Items = append(doc.Channel.Items, item)
	}

	output, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rss: %w", err)
	}
	return append([]byte(xml.Header), output...), nil
}
