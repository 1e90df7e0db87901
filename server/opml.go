package server

import (
	"encoding/xml"
	"fmt"

	"nanofeed/db"
	"nanofeed/models"
)

type opmlDocument struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title string `xml:"title,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Type     string        `xml:"type,attr,omitempty"`
	XmlUrl   string        `xml:"xmlUrl,attr,omitempty"`
	Outlines []opmlOutline `xml:"outline"`
}

// walkOutlines flattens the outline tree; OPML exports commonly nest feeds
// under folder outlines.
func walkOutlines(outline opmlOutline, collector *[]opmlOutline) {
	for _, child := range outline.Outlines {
		walkOutlines(child, collector)
	}
	*collector = append(*collector, outline)
}

// importOPML subscribes every feed outline found in the document.
func importOPML(t *db.Tenant, body []byte) error {
	var document opmlDocument
	if err := xml.Unmarshal(body, &document); err != nil {
		return fmt.Errorf("error parsing opml: %w", err)
	}

	var outlines []opmlOutline
	for _, outline := range document.Body.Outlines {
		walkOutlines(outline, &outlines)
	}

	for _, outline := range outlines {
		if outline.XmlUrl == "" {
			continue
		}

		name := outline.Text
		if err := subscribe(t, models.NewFeed{
			Url:  outline.XmlUrl,
			Name: &name,
		}); err != nil {
			return err
		}
	}

	return nil
}

// exportOPML renders the current subscriptions as an OPML document.
func exportOPML(t *db.Tenant) (string, error) {
	feeds, err := t.ListFeeds()
	if err != nil {
		return "", err
	}

	document := opmlDocument{
		Version: "2.0",
		Head:    opmlHead{Title: t.Username() + " subscriptions"},
	}
	for _, feed := range feeds {
		document.Body.Outlines = append(document.Body.Outlines, opmlOutline{
			Text:   feed.Name,
			Type:   "rss",
			XmlUrl: feed.Url,
		})
	}

	out, err := xml.MarshalIndent(document, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error rendering opml: %w", err)
	}

	return xml.Header + string(out), nil
}
