package xfeed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/replyd/autoreply"
)

const (
	replyButtonSel = "[data-testid='reply']"
	composerSel    = "div[role='textbox']"
	submitSel      = "[data-testid='tweetButton']"
	discardSel     = "[data-testid='confirmationSheetConfirm']"
)

func articleSelector(id string) string {
	return fmt.Sprintf("article:has(a[href*='/status/%s'])", id)
}

// DispatchReply opens the reply composer on post, types message and
// submits it. It returns once the composer has closed.
func (s *Source) DispatchReply(ctx context.Context, post autoreply.Post, message string) error {
	box, err := s.openComposer(ctx, post, message)
	if err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.SubmitTimeout)
	defer cancel()
	submit, err := s.page.Context(sctx).Element(submitSel)
	if err != nil {
		return fmt.Errorf("xfeed: submit button: %w", err)
	}
	if err := submit.Context(sctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("xfeed: click submit: %w", err)
	}
	if err := box.Context(sctx).WaitInvisible(); err != nil {
		return fmt.Errorf("xfeed: composer did not close after submit: %w", err)
	}
	return nil
}

// ComposeReply fills the composer like DispatchReply, then discards it.
func (s *Source) ComposeReply(ctx context.Context, post autoreply.Post, message string) error {
	if _, err := s.openComposer(ctx, post, message); err != nil {
		return err
	}
	s.dismiss()
	return nil
}

func (s *Source) openComposer(ctx context.Context, post autoreply.Post, message string) (*rod.Element, error) {
	cctx, cancel := context.WithTimeout(ctx, s.opts.ClickTimeout)
	defer cancel()
	article, err := s.page.Context(cctx).Element(articleSelector(post.ID))
	if err != nil {
		return nil, fmt.Errorf("xfeed: post %s not on page: %w", post.ID, err)
	}
	btn, err := article.Context(cctx).Element(replyButtonSel)
	if err != nil {
		return nil, fmt.Errorf("xfeed: reply button: %w", err)
	}
	if err := btn.Context(cctx).ScrollIntoView(); err != nil {
		s.log.Debug("xfeed: scroll into view failed", "post_id", post.ID, "error", err)
	}
	if err := btn.Context(cctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return nil, fmt.Errorf("xfeed: click reply: %w", err)
	}

	tctx, tcancel := context.WithTimeout(ctx, s.opts.ComposerTimeout)
	defer tcancel()
	box, err := s.page.Context(tctx).Element(composerSel)
	if err != nil {
		return nil, fmt.Errorf("xfeed: composer: %w", err)
	}
	if err := box.Context(tctx).Input(message); err != nil {
		s.dismiss()
		return nil, fmt.Errorf("xfeed: type reply: %w", err)
	}
	return box.Context(context.Background()), nil
}

// dismiss closes the composer and confirms the discard prompt if one shows.
func (s *Source) dismiss() {
	if err := s.page.Keyboard.Type(input.Escape); err != nil {
		s.log.Debug("xfeed: dismiss composer failed", "error", err)
		return
	}
	if el, err := s.page.Timeout(time.Second).Element(discardSel); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			s.log.Debug("xfeed: discard draft failed", "error", err)
		}
	}
}
