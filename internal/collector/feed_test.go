package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/grantscan/internal/model"
)

const idbFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>IDB procurement</title>
  <link>https://www.iadb.org</link>
  <description>Notices</description>
  <item>
    <title>Technical cooperation for rural water in Peru</title>
    <link>https://www.iadb.org/en/project/PE-T1234</link>
    <description><![CDATA[<p>Grant for <b>rural</b> water systems. Contact pe-water@iadb.org</p>]]></description>
    <category>Water</category>
    <pubDate>Mon, 03 Mar 2025 10:00:00 GMT</pubDate>
  </item>
  <item>
    <title>Board approves budget for headquarters</title>
    <link>/en/news/budget</link>
    <description>Internal administration news.</description>
  </item>
  <item>
    <title></title>
    <description>Untitled item</description>
  </item>
</channel>
</rss>`

func TestFeedCollector(t *testing.T) {
	t.Parallel()

	newServer := func() *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/feed.xml" {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = w.Write([]byte(idbFeed))
		}))
	}

	t.Run("maps items", func(t *testing.T) {
		t.Parallel()

		server := newServer()
		defer server.Close()

		feedURL := server.URL + "/feed.xml"
		c := NewFeedCollector("idb", NewFetcher(server.Client()), FeedConfig{
			URLs:            []string{feedURL},
			Organization:    "Inter-American Development Bank (IDB)",
			GeographicFocus: "Latin America and the Caribbean",
			ProgramType:     "IDB Program",
		}, WithClock(fixedClock))

		opps, err := c.Collect(context.Background())
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if len(opps) != 2 {
			t.Fatalf("expected 2 records, got %d", len(opps))
		}

		first := opps[0]
		if first.Title != "Technical cooperation for rural water in Peru" {
			t.Errorf("Title = %q", first.Title)
		}
		if first.Description != "Grant for rural water systems. Contact pe-water@iadb.org" {
			t.Errorf("Description = %q", first.Description)
		}
		if first.Sector != "Water" {
			t.Errorf("Sector = %q", first.Sector)
		}
		if first.ContactInfo != "pe-water@iadb.org" {
			t.Errorf("ContactInfo = %q", first.ContactInfo)
		}
		want := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
		if first.AnnouncementDate == nil || !first.AnnouncementDate.Equal(want) {
			t.Errorf("AnnouncementDate = %v, expected %v", first.AnnouncementDate, want)
		}

		second := opps[1]
		if !model.HasURLScheme(second.ApplicationLink) || !strings.HasSuffix(second.ApplicationLink, "/en/news/budget") {
			t.Errorf("relative link resolved to %q", second.ApplicationLink)
		}
		if second.AnnouncementDate == nil || !second.AnnouncementDate.Equal(fixedClock()) {
			t.Errorf("AnnouncementDate = %v, expected the collection time", second.AnnouncementDate)
		}
	})

	t.Run("keyword filter", func(t *testing.T) {
		t.Parallel()

		server := newServer()
		defer server.Close()

		c := NewFeedCollector("idb", NewFetcher(server.Client()), FeedConfig{
			URLs:     []string{server.URL + "/feed.xml"},
			Keywords: []string{" RURAL "},
		})
		opps, err := c.Collect(context.Background())
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if len(opps) != 1 {
			t.Errorf("expected 1 record, got %d", len(opps))
		}
	})

	t.Run("unreachable feed among good ones is skipped", func(t *testing.T) {
		t.Parallel()

		server := newServer()
		defer server.Close()

		c := NewFeedCollector("idb", NewFetcher(server.Client()), FeedConfig{
			URLs: []string{server.URL + "/missing.xml", server.URL + "/feed.xml"},
		})
		opps, err := c.Collect(context.Background())
		if err != nil {
			t.Fatalf("Collect failed: %v", err)
		}
		if len(opps) != 2 {
			t.Errorf("expected 2 records, got %d", len(opps))
		}
	})

	t.Run("all feeds failing is an error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not a feed"))
		}))
		defer server.Close()

		c := NewFeedCollector("idb", NewFetcher(server.Client()), FeedConfig{URLs: []string{server.URL}})
		if _, err := c.Collect(context.Background()); err == nil {
			t.Fatal("expected a parse error")
		}
	})
}
