package xfeed

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/replyd/autoreply"
)

// rawArticle is what the page script reports for one article element.
type rawArticle struct {
	Href          string `json:"href"`
	Datetime      string `json:"datetime"`
	HasReply      bool   `json:"has_reply"`
	ReplyDisabled bool   `json:"reply_disabled"`
	Text          string `json:"text"`
}

// The post's own permalink is the status link wrapping its <time>; quoted
// posts carry other status links.
const scanScript = `() => Array.from(document.querySelectorAll('article')).map(a => {
	const t = a.querySelector('time[datetime]');
	const link = (t && t.closest("a[href*='/status/']")) || a.querySelector("a[href*='/status/']");
	const reply = a.querySelector("[data-testid='reply']");
	const body = a.querySelector("[data-testid='tweetText']");
	return {
		href: link ? link.getAttribute('href') : '',
		datetime: t ? t.getAttribute('datetime') : '',
		has_reply: !!reply,
		reply_disabled: !!reply && (reply.getAttribute('aria-disabled') === 'true' || reply.disabled === true),
		text: body ? body.innerText : (a.innerText || ''),
	};
})`

func (s *Source) scanArticles(ctx context.Context) ([]rawArticle, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      scanScript,
		ByValue: true,
	})
	if err != nil {
		return nil, err
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out []rawArticle
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// toPosts turns scanned articles into posts, dropping unparseable and
// duplicate entries and, when maxAge > 0, posts older than maxAge.
func toPosts(raw []rawArticle, now time.Time, maxAge time.Duration) []autoreply.Post {
	seen := make(map[string]bool, len(raw))
	posts := make([]autoreply.Post, 0, len(raw))
	for _, a := range raw {
		author, id, ok := parseStatusHref(a.Href)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true

		created, _ := time.Parse(time.RFC3339, a.Datetime)
		if maxAge > 0 && !created.IsZero() && now.Sub(created) > maxAge {
			continue
		}
		posts = append(posts, autoreply.Post{
			ID:           id,
			Author:       author,
			Text:         strings.TrimSpace(a.Text),
			RepliesOpen:  a.HasReply && !a.ReplyDisabled,
			DiscoveredAt: now,
			CreatedAt:    created,
			URL:          "https://x.com/" + author + "/status/" + id,
		})
	}
	return posts
}

var statusIDRe = regexp.MustCompile(`^[0-9]+$`)

// parseStatusHref extracts the author handle and post id from a status link
// such as "/alice/status/123" or "https://x.com/alice/status/123/photo/1".
func parseStatusHref(href string) (author, id string, ok bool) {
	if href == "" {
		return "", "", false
	}
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	parts := strings.Split(strings.Trim(href, "/"), "/")
	if len(parts) < 3 || parts[1] != "status" || parts[0] == "" || !statusIDRe.MatchString(parts[2]) {
		return "", "", false
	}
	return parts[0], parts[2], true
}
