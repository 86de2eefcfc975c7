package browser

import (
	"context"
	"strings"

	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"

	"xharvest/internal/dom"
)

// Page implements dom.Page over a chromedp tab.
type Page struct {
	ctx context.Context
}

func (p *Page) Navigate(url string) error {
	return chromedp.Run(p.ctx, chromedp.Navigate(url))
}

func (p *Page) Find(selector string) (dom.Element, error) {
	var el dom.Element
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := cdpdom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		id, err := cdpdom.QuerySelector(root.NodeID, selector).Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		if id == 0 {
			return dom.ErrNoSuchElement
		}
		el = &Element{page: p, id: id}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (p *Page) FindAll(selector string) ([]dom.Element, error) {
	var els []dom.Element
	err := chromedp.Run(p.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		root, err := cdpdom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		ids, err := cdpdom.QuerySelectorAll(root.NodeID, selector).Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		els = make([]dom.Element, 0, len(ids))
		for _, id := range ids {
			if id != 0 {
				els = append(els, &Element{page: p, id: id})
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return els, nil
}

func (p *Page) ScrollToBottom() error {
	return chromedp.Run(p.ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
}

func (p *Page) ScrollHeight() (float64, error) {
	var h float64
	err := chromedp.Run(p.ctx,
		chromedp.Evaluate(`document.body.scrollHeight`, &h),
	)
	return h, err
}

// nodeID resolution failures mean the page re-rendered underneath us.
var staleMessages = []string{
	"could not find node",
	"no node with given id",
	"node with given id does not belong",
	"node is detached",
}

func wrapCDPError(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, m := range staleMessages {
		if strings.Contains(msg, m) {
			return &staleError{cause: err}
		}
	}
	return err
}

type staleError struct{ cause error }

func (e *staleError) Error() string { return "stale element reference: " + e.cause.Error() }
func (e *staleError) Unwrap() error { return dom.ErrStale }
