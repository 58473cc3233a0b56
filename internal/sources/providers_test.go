package sources_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
	"github.com/joseph-ayodele/casting-aggregator/internal/repository/repotest"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
)

func TestChatProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/groups":
			_, _ = fmt.Fprint(w, `[{"id":"g1","name":"Casting KSA"}]`)
		case "/messages/list/g1":
			require.Equal(t, "50", r.URL.Query().Get("count"))
			_, _ = fmt.Fprint(w, `[
				{"id":"a","from":"x","timestamp":1767225600,"text":"hello"},
				{"id":"b","from":"y","timestamp":1767225700,"text":"","caption":"photo caption"}
			]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gw := sources.NewChatGateway(srv.URL+"/", "tok", time.Second, repotest.Logger())
	groups, err := gw.ListGroups(context.Background())
	require.NoError(t, err)
	require.Equal(t, []sources.Group{{ID: "g1", Name: "Casting KSA"}}, groups)

	prov := sources.NewChatProvider(gw, 50)
	require.Equal(t, constants.SourceKindChat, prov.Kind())
	items, err := prov.Fetch(context.Background(), entity.Source{Locator: "g1"})
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "chat://g1/a", items[0].URL)
	require.Equal(t, "photo caption", items[1].Text)
	require.Equal(t, time.Unix(1767225700, 0).UTC(), items[1].PostedAt)

	_, err = prov.Fetch(context.Background(), entity.Source{Locator: "missing"})
	require.ErrorContains(t, err, "status 404")
}

const pageHTML = `<!doctype html><html><head><title>Open Casting</title></head><body>
<nav>Home | About</nav>
<article><h1>Open Casting</h1>
<p>We are looking for actors aged 20 to 35 for a feature film shooting in Jeddah next month.</p>
<p>Send your headshot and showreel to casting@example.com before the deadline.</p>
<p>Paid role, transport provided, two shooting days on location.</p>
</article></body></html>`

func TestPageProviderKeyTracksContent(t *testing.T) {
	body := pageHTML
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, body)
	}))
	defer srv.Close()

	prov := sources.NewPageProvider(sources.NewPageScraper(time.Second, repotest.Logger()))
	require.Equal(t, constants.SourceKindPage, prov.Kind())
	src := entity.Source{Locator: srv.URL + "/castings"}

	first, err := prov.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Contains(t, first[0].Text, "feature film shooting in Jeddah")
	require.Equal(t, src.Locator, first[0].URL)

	again, err := prov.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.Equal(t, first[0].Key, again[0].Key)

	body = pageHTML[:len(pageHTML)-len("</article></body></html>")] +
		"<p>Update: auditions moved to Saturday morning at the studio.</p></article></body></html>"
	edited, err := prov.Fetch(context.Background(), src)
	require.NoError(t, err)
	require.NotEqual(t, first[0].Key, edited[0].Key)
}

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>@castingksa</title>
<item><guid>p1</guid><link>https://social.example/p/1</link>
<pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
<description><![CDATA[<p>Casting call!</p><p>Female actors<br>Riyadh</p>]]></description></item>
<item><guid>p2</guid><link>https://social.example/p/2</link>
<pubDate>Tue, 03 Mar 2026 10:00:00 GMT</pubDate>
<description>plain caption</description></item>
</channel></rss>`

func TestSocialProvider(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = fmt.Fprint(w, feedXML)
	}))
	defer srv.Close()

	client := sources.NewFeedSocialClient(srv.URL+"/feed/%s", time.Second)
	prov := sources.NewSocialProvider(client, 1)
	require.Equal(t, constants.SourceKindSocial, prov.Kind())

	items, err := prov.Fetch(context.Background(), entity.Source{Locator: "@castingksa"})
	require.NoError(t, err)
	require.Equal(t, "/feed/castingksa", gotPath)
	require.Len(t, items, 1)
	require.Equal(t, "p1", items[0].Key)
	require.Equal(t, "https://social.example/p/1", items[0].URL)
	require.Equal(t, "Casting call!\nFemale actors\nRiyadh", items[0].Text)
	require.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), items[0].PostedAt.UTC())
}

func TestSocialClientRequiresTemplate(t *testing.T) {
	_, err := sources.NewFeedSocialClient("", time.Second).ListRecentPosts(context.Background(), "x", 5)
	require.Error(t, err)
}
