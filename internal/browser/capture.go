package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"formpilot/internal/backend"
	"formpilot/internal/dom"

	"github.com/go-rod/rod"
)

// PageCapture is one parsed view of a live page plus the metadata the
// question backend wants about it.
type PageCapture struct {
	Snapshot *dom.Snapshot
	Title    string
	URL      string
	Text     string
}

// captureJS stamps a marker attribute onto form controls that currently
// have no visible box, then hands back the serialized document. The marker
// lets the scanner work from static HTML without re-querying layout.
const captureJS = `
(hiddenAttr, overlayAttr, maxText) => {
	document.querySelectorAll('[' + hiddenAttr + ']').forEach((el) => {
		el.removeAttribute(hiddenAttr);
	});
	const controls = document.querySelectorAll('input, textarea, select, button, a, [role="button"]');
	controls.forEach((el) => {
		if (el.closest('[' + overlayAttr + ']')) return;
		if (el.type === 'hidden') return;
		if (el.offsetParent === null) {
			el.setAttribute(hiddenAttr, '1');
		}
	});
	let text = '';
	for (const sel of ['main', 'article', '[role="main"]', '#content', '.content']) {
		const container = document.querySelector(sel);
		if (container && container.innerText.trim()) {
			text = container.innerText;
			break;
		}
	}
	if (!text && document.body) text = document.body.innerText;
	return {
		html: document.documentElement.outerHTML,
		title: document.title || '',
		url: location.href,
		text: text.slice(0, maxText)
	};
}
`

// CapturePage snapshots the live DOM. The generation tags the resulting
// snapshot so selectors from older captures are rejected.
func CapturePage(ctx context.Context, page *rod.Page, generation int) (*PageCapture, error) {
	res, err := page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           captureJS,
		JSArgs:       []interface{}{dom.HiddenAttr, dom.OverlayAttr, backend.MaxPageText},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return nil, fmt.Errorf("capture page: %w", err)
	}
	if res == nil || res.Value.Nil() {
		return nil, fmt.Errorf("capture page: empty result")
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("capture page: %w", err)
	}

	var payload struct {
		HTML  string `json:"html"`
		Title string `json:"title"`
		URL   string `json:"url"`
		Text  string `json:"text"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}

	snap, err := dom.ParseString(payload.HTML, generation)
	if err != nil {
		return nil, fmt.Errorf("parse capture: %w", err)
	}

	return &PageCapture{
		Snapshot: snap,
		Title:    payload.Title,
		URL:      payload.URL,
		Text:     payload.Text,
	}, nil
}
