package xfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/replyd/autoreply"
)

const (
	profileLinkSel = "[data-testid='AppTabBar_Profile_Link']"
	captchaSel     = "iframe[src*='captcha'], iframe[src*='arkose'], iframe[src*='challenge']"
	rateLimitText  = "Rate limit exceeded"
)

// pageState is what PageSignal reads from the page. Read is false when the
// page could not be sampled at all.
type pageState struct {
	Read         bool   `json:"-"`
	URL          string `json:"url"`
	CaptchaFrame bool   `json:"captcha"`
	RateLimited  bool   `json:"rateLimited"`
	ProfileLink  bool   `json:"profile"`
	Articles     bool   `json:"articles"`
}

// signalOf maps page state to a signal. A challenge outranks a rate limit.
// Normal needs positive evidence: a logged-in tab bar or search results.
func signalOf(st pageState) autoreply.Signal {
	if !st.Read || st.URL == "" {
		return autoreply.SignalUnknown
	}
	u := strings.ToLower(st.URL)
	switch {
	case strings.Contains(u, "captcha"), strings.Contains(u, "challenge"),
		strings.Contains(u, "/account/access"), st.CaptchaFrame:
		return autoreply.SignalChallenge
	case st.RateLimited:
		return autoreply.SignalRateLimited
	case st.ProfileLink, st.Articles:
		return autoreply.SignalNormal
	}
	return autoreply.SignalUnknown
}

const probeScript = `(m) => ({
	url: location.href,
	captcha: !!document.querySelector(m.captcha),
	rateLimited: !!document.body && document.body.innerText.includes(m.text),
	profile: !!document.querySelector(m.profile),
	articles: !!document.querySelector("article"),
})`

// PageSignal samples the page for challenge and rate-limit markers and for
// the expected content. A probe that fails or times out reads as unknown.
func (s *Source) PageSignal(ctx context.Context) autoreply.Signal {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	st, err := s.readPage(pctx)
	if err != nil {
		s.log.Debug("xfeed: page probe failed", "error", err)
	}
	sig := signalOf(st)
	if sig != autoreply.SignalNormal {
		s.log.Debug("xfeed: page signal", "signal", sig.String(), "url", st.URL)
	}
	return sig
}

func (s *Source) readPage(ctx context.Context) (pageState, error) {
	var st pageState
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS: probeScript,
		JSArgs: []interface{}{map[string]string{
			"captcha": captchaSel,
			"profile": profileLinkSel,
			"text":    rateLimitText,
		}},
		ByValue: true,
	})
	if err != nil {
		return st, err
	}
	data, err := res.Value.MarshalJSON()
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return pageState{}, err
	}
	st.Read = true
	return st, nil
}

// WaitLoggedIn opens the login page and waits until the session shows the
// profile link, which a saved profile does immediately. Otherwise the
// operator logs in by hand in the browser window.
func (s *Source) WaitLoggedIn(ctx context.Context) error {
	if err := s.gotoResilient(ctx, s.opts.LoginURL); err != nil {
		return err
	}
	s.onSearch = false

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	prompted := false
	for {
		if has, _, err := s.page.Context(ctx).Has(profileLinkSel); err == nil && has {
			s.log.Info("xfeed: session is logged in")
			return nil
		}
		if !prompted {
			s.log.Warn("xfeed: not logged in, log in manually in the browser window", "url", s.opts.LoginURL)
			prompted = true
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("xfeed: waiting for login: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
