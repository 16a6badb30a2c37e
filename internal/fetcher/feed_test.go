package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>MistTrack Alert</title>
<link>https://t.me/s/misttrack_alert</link>
<description>alerts</description>
<item>
<title>Large transfer</title>
<description><![CDATA[🚨 <b>1,000</b> #BTC moved to exchange]]></description>
<link>https://t.me/misttrack_alert/101</link>
<pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
</item>
<item>
<title>Stablecoin mint</title>
<description><![CDATA[50,000,000 #USDT minted]]></description>
<link>https://t.me/misttrack_alert/102</link>
<pubDate>Mon, 02 Jan 2006 16:04:05 GMT</pubDate>
</item>
</channel>
</rss>`

func newFeedServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func serveBody(status int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}
}

func TestFeedFetchSuccess(t *testing.T) {
	var gotUA string
	srv := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		serveBody(http.StatusOK, sampleRSS)(w, r)
	})

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, InsecureSkipVerify: true, RequireTLS: true}, noopLogger())
	entries, err := f.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条, 实际 %d", len(entries))
	}
	first := entries[0]
	if first.Link != "https://t.me/misttrack_alert/101" {
		t.Fatalf("link 顺序或内容不正确: %q", first.Link)
	}
	if first.Summary != "🚨 <b>1,000</b> #BTC moved to exchange" {
		t.Fatalf("summary 应保留原始 HTML: %q", first.Summary)
	}
	if first.Published != "Mon, 02 Jan 2006 15:04:05 GMT" {
		t.Fatalf("published 应原样保留: %q", first.Published)
	}
	if gotUA != "Mozilla/5.0" {
		t.Fatalf("默认 User-Agent 不正确: %q", gotUA)
	}
}

func TestFeedFetchVerifiesCertificatesWhenAsked(t *testing.T) {
	srv := newFeedServer(t, serveBody(http.StatusOK, sampleRSS))

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, RequireTLS: true}, noopLogger())
	_, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
}

func TestFeedFetchRequiresTLS(t *testing.T) {
	srv := httptest.NewServer(serveBody(http.StatusOK, sampleRSS))
	defer srv.Close()

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, RequireTLS: true}, noopLogger())
	_, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
}

func TestFeedFetchMalformedPayload(t *testing.T) {
	srv := newFeedServer(t, serveBody(http.StatusOK, "definitely not a feed"))

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, InsecureSkipVerify: true}, noopLogger())
	entries, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
	if entries != nil {
		t.Fatalf("失败时不应返回部分结果: %#v", entries)
	}
}

func TestFeedFetchHTTPError(t *testing.T) {
	srv := newFeedServer(t, serveBody(http.StatusBadGateway, "upstream down"))

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, InsecureSkipVerify: true}, noopLogger())
	_, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
}

func TestFeedFetchTimeout(t *testing.T) {
	srv := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: 50 * time.Millisecond, InsecureSkipVerify: true}, noopLogger())
	_, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
}

func TestFeedFetchRefusesRedirectToPlainHTTP(t *testing.T) {
	var plainHits atomic.Int32
	plain := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plainHits.Add(1)
		serveBody(http.StatusOK, sampleRSS)(w, r)
	}))
	t.Cleanup(plain.Close)

	srv := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, plain.URL+"/rss", http.StatusFound)
	})

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, InsecureSkipVerify: true, RequireTLS: true}, noopLogger())
	entries, err := f.FetchFeed(context.Background())
	assertFetchError(t, err, feedSource)
	if len(entries) != 0 {
		t.Fatalf("不应返回明文通道的条目, 实际 %d", len(entries))
	}
	if plainHits.Load() != 0 {
		t.Fatalf("跳转到 http 时不应发起明文请求 / plain server was contacted")
	}
}

func TestFeedFetchFollowsHTTPSRedirect(t *testing.T) {
	target := newFeedServer(t, serveBody(http.StatusOK, sampleRSS))
	srv := newFeedServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/rss", http.StatusMovedPermanently)
	})

	f := NewFeed(FeedOptions{URL: srv.URL, Timeout: time.Second, InsecureSkipVerify: true, RequireTLS: true}, noopLogger())
	entries, err := f.FetchFeed(context.Background())
	if err != nil {
		t.Fatalf("https 之间的跳转应正常跟随: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条, 实际 %d", len(entries))
	}
}
