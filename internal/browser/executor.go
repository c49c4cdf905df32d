package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"formpilot/internal/config"
	"formpilot/internal/dom"

	"github.com/go-rod/rod"
	"go.uber.org/zap"
)

// Executor mutates the live page on behalf of the fill engine. Values are
// written through synthetic input events so framework-bound forms notice
// the change, and every mutation gets a short visual acknowledgement.
type Executor struct {
	page   *rod.Page
	cfg    config.EngineConfig
	logger *zap.Logger
}

func NewExecutor(page *rod.Page, cfg config.EngineConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{page: page, cfg: cfg, logger: logger}
}

// setValueJS writes a value into the control addressed by selector.
// Checkboxes toggle from the parsed answer, radios pick the sibling whose
// value matches, selects match an option by value then by text. The control
// is highlighted for highlightMs after the write. Returns false when the
// selector no longer resolves.
const setValueJS = `
(selector, value, fieldType, checked, highlightMs) => {
	const el = document.querySelector(selector);
	if (!el) return false;

	if (fieldType === 'checkbox') {
		el.checked = checked;
	} else if (fieldType === 'radio' || fieldType === 'radio_group') {
		let target = el;
		if (el.name) {
			const group = document.querySelectorAll('input[type="radio"][name="' + CSS.escape(el.name) + '"]');
			for (const r of group) {
				const label = r.labels && r.labels[0] ? r.labels[0].textContent.trim() : '';
				if (r.value.toLowerCase() === value.toLowerCase() ||
					label.toLowerCase() === value.toLowerCase()) {
					target = r;
					break;
				}
			}
		}
		target.checked = true;
	} else if (el.tagName === 'SELECT') {
		let matched = false;
		for (const opt of el.options) {
			if (opt.value.toLowerCase() === value.toLowerCase()) {
				el.value = opt.value;
				matched = true;
				break;
			}
		}
		if (!matched) {
			for (const opt of el.options) {
				if (opt.textContent.trim().toLowerCase() === value.toLowerCase()) {
					el.value = opt.value;
					matched = true;
					break;
				}
			}
		}
		if (!matched) el.value = value;
	} else {
		el.value = value;
	}

	el.dispatchEvent(new Event('input', { bubbles: true }));
	el.dispatchEvent(new Event('change', { bubbles: true }));

	const prevOutline = el.style.outline;
	const prevShadow = el.style.boxShadow;
	el.style.outline = '2px solid #34a853';
	el.style.boxShadow = '0 0 6px rgba(52, 168, 83, 0.6)';
	setTimeout(() => {
		el.style.outline = prevOutline;
		el.style.boxShadow = prevShadow;
	}, highlightMs);

	return true;
}
`

// pulseJS flashes the control so the user sees what is about to be clicked.
const pulseJS = `
(selector, pulseMs) => {
	const el = document.querySelector(selector);
	if (!el) return false;
	const prevOutline = el.style.outline;
	el.style.outline = '3px solid #fbbc05';
	el.scrollIntoView({ block: 'center', behavior: 'instant' });
	setTimeout(() => { el.style.outline = prevOutline; }, pulseMs);
	return true;
}
`

// focusJS marks the field whose question is pending. The previous mark is
// cleared first so exactly one field carries the outline at a time.
const focusJS = `
(selector, markAttr) => {
	const prev = document.querySelector('[' + markAttr + ']');
	if (prev) {
		prev.style.outline = prev.getAttribute(markAttr);
		prev.removeAttribute(markAttr);
	}
	if (!selector) return true;
	const el = document.querySelector(selector);
	if (!el) return false;
	el.setAttribute(markAttr, el.style.outline);
	el.style.outline = '2px solid #4285f4';
	el.scrollIntoView({ block: 'center', behavior: 'smooth' });
	return true;
}
`

// focusMarkAttr stashes the field's original outline while its question is
// pending.
const focusMarkAttr = "data-fp-focus"

const clickJS = `
(selector) => {
	const el = document.querySelector(selector);
	if (!el) return false;
	el.click();
	return true;
}
`

// SetValue writes the answer into the field and leaves a highlight on it.
func (e *Executor) SetValue(ctx context.Context, field dom.FieldDescriptor, value string) error {
	checked := answerIsAffirmative(value)
	ok, err := e.evalBool(ctx, setValueJS,
		field.Selector, value, field.Type, checked, int(e.cfg.HighlightDuration()/time.Millisecond))
	if err != nil {
		return fmt.Errorf("set value on %s: %w", field.Selector, err)
	}
	if !ok {
		return fmt.Errorf("field %s is no longer on the page", field.DisplayName())
	}
	e.logger.Debug("value applied",
		zap.String("selector", field.Selector),
		zap.String("field_type", field.Type))
	return nil
}

// Focus outlines the field whose question is being asked and scrolls it
// into view. An empty selector just clears the current outline.
func (e *Executor) Focus(ctx context.Context, selector string) error {
	ok, err := e.evalBool(ctx, focusJS, selector, focusMarkAttr)
	if err != nil {
		return fmt.Errorf("focus %s: %w", selector, err)
	}
	if selector != "" && !ok {
		return fmt.Errorf("field %s is no longer on the page", selector)
	}
	return nil
}

// Click pulses the control, waits for the pulse to be visible, then fires a
// native click.
func (e *Executor) Click(ctx context.Context, button dom.ButtonDescriptor) error {
	pulse := e.cfg.ClickPulseDelay()
	ok, err := e.evalBool(ctx, pulseJS, button.Selector, int(pulse/time.Millisecond))
	if err != nil {
		return fmt.Errorf("pulse %s: %w", button.Selector, err)
	}
	if !ok {
		return fmt.Errorf("button %q is no longer on the page", button.Text)
	}

	if err := sleepCtx(ctx, pulse); err != nil {
		return err
	}

	ok, err = e.evalBool(ctx, clickJS, button.Selector)
	if err != nil {
		return fmt.Errorf("click %s: %w", button.Selector, err)
	}
	if !ok {
		return fmt.Errorf("button %q disappeared before the click landed", button.Text)
	}
	e.logger.Debug("button clicked",
		zap.String("selector", button.Selector),
		zap.String("text", button.Text))
	return nil
}

func (e *Executor) evalBool(ctx context.Context, js string, args ...interface{}) (bool, error) {
	res, err := e.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           js,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return false, err
	}
	if res == nil || res.Value.Nil() {
		return false, nil
	}
	return res.Value.Bool(), nil
}

// answerIsAffirmative parses a checkbox answer.
func answerIsAffirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "yes", "y", "true", "1", "on", "checked", "check":
		return true
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
