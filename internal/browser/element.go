package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	cdpdom "github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"xharvest/internal/dom"
)

// Element implements dom.Element over a CDP node ID. The node ID is
// the per-render identity: it stays valid while the node lives in the
// document and resolution fails once the page discards it.
type Element struct {
	page *Page
	id   cdp.NodeID
}

func (e *Element) ID() string { return strconv.FormatInt(int64(e.id), 10) }

func (e *Element) Find(selector string) (dom.Element, error) {
	var el dom.Element
	err := chromedp.Run(e.page.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		id, err := cdpdom.QuerySelector(e.id, selector).Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		if id == 0 {
			return dom.ErrNoSuchElement
		}
		el = &Element{page: e.page, id: id}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (e *Element) FindAll(selector string) ([]dom.Element, error) {
	var els []dom.Element
	err := chromedp.Run(e.page.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		ids, err := cdpdom.QuerySelectorAll(e.id, selector).Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		els = make([]dom.Element, 0, len(ids))
		for _, id := range ids {
			if id != 0 {
				els = append(els, &Element{page: e.page, id: id})
			}
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return els, nil
}

// Children matches direct children only, by scoping each selector in
// the group.
func (e *Element) Children(selector string) ([]dom.Element, error) {
	parts := strings.Split(selector, ",")
	for i, p := range parts {
		parts[i] = ":scope > " + strings.TrimSpace(p)
	}
	return e.FindAll(strings.Join(parts, ", "))
}

func (e *Element) Parent() (dom.Element, error) {
	var el dom.Element
	err := chromedp.Run(e.page.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		objID, err := e.resolve(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(`function() { return this.parentElement }`).
			WithObjectID(objID).
			Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		if exc != nil {
			return fmt.Errorf("parentElement: %s", exc.Text)
		}
		if res == nil || res.ObjectID == "" {
			return dom.ErrNoSuchElement
		}
		id, err := cdpdom.RequestNode(res.ObjectID).Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		if id == 0 {
			return dom.ErrNoSuchElement
		}
		el = &Element{page: e.page, id: id}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (e *Element) Tag() (string, error) {
	var tag string
	err := e.eval(`function() { return this.tagName.toLowerCase() }`, nil, &tag)
	return tag, err
}

func (e *Element) Text() (string, error) {
	var text string
	err := e.eval(`function() { return this.innerText }`, nil, &text)
	return text, err
}

func (e *Element) Attr(name string) (string, bool, error) {
	var value *string
	if err := e.eval(`function(n) { return this.getAttribute(n) }`, []any{name}, &value); err != nil {
		return "", false, err
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (e *Element) Click() error {
	return e.eval(`function() { this.click() }`, nil, nil)
}

func (e *Element) ScrollIntoView() error {
	return e.eval(`function() { this.scrollIntoView({block: "center"}) }`, nil, nil)
}

// Hover dispatches a real mouse move to the element's center; the
// hover card does not open for synthetic JS events.
func (e *Element) Hover() error {
	var rect struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}
	err := e.eval(`function() {
		const r = this.getBoundingClientRect();
		return {x: r.x, y: r.y, width: r.width, height: r.height};
	}`, nil, &rect)
	if err != nil {
		return err
	}

	return chromedp.Run(e.page.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return input.DispatchMouseEvent(input.MouseMoved,
			rect.X+rect.Width/2, rect.Y+rect.Height/2).Do(ctx)
	}))
}

func (e *Element) Y() (float64, error) {
	var y float64
	err := e.eval(`function() { return this.getBoundingClientRect().top + window.scrollY }`, nil, &y)
	return y, err
}

// resolve turns the node ID into a callable remote object. Failure
// here is the staleness signal.
func (e *Element) resolve(ctx context.Context) (runtime.RemoteObjectID, error) {
	obj, err := cdpdom.ResolveNode().WithNodeID(e.id).Do(ctx)
	if err != nil {
		return "", wrapCDPError(err)
	}
	return obj.ObjectID, nil
}

// eval calls a function declaration with `this` bound to the element,
// unmarshalling the by-value result into out when non-nil.
func (e *Element) eval(fn string, args []any, out any) error {
	return chromedp.Run(e.page.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		objID, err := e.resolve(ctx)
		if err != nil {
			return err
		}

		call := runtime.CallFunctionOn(fn).
			WithObjectID(objID).
			WithReturnByValue(true)
		if len(args) > 0 {
			callArgs := make([]*runtime.CallArgument, len(args))
			for i, a := range args {
				raw, err := json.Marshal(a)
				if err != nil {
					return err
				}
				callArgs[i] = &runtime.CallArgument{Value: raw}
			}
			call = call.WithArguments(callArgs)
		}

		res, exc, err := call.Do(ctx)
		if err != nil {
			return wrapCDPError(err)
		}
		if exc != nil {
			return fmt.Errorf("element script: %s", exc.Text)
		}
		if out == nil || res == nil || res.Value == nil {
			return nil
		}
		return json.Unmarshal(res.Value, out)
	}))
}
