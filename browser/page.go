package browser

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// rodPage implements Driver over a Rod page.
type rodPage struct {
	page       *rod.Page
	navTimeout time.Duration
	log        *slog.Logger
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, p.navTimeout)
	defer cancel()

	pg := p.page.Context(navCtx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		// Pages that never fire load are common on heavy portals; log
		// and let the caller's element waits decide.
		p.log.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

func (p *rodPage) Find(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find %q: %w", selector, err)
	}
	return &rodElement{el: el.CancelTimeout()}, nil
}

func (p *rodPage) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := p.page.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: find all %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.Find(ctx, selector, 0)
	if err != nil {
		return err
	}
	return el.Click(ctx)
}

func (p *rodPage) Fill(ctx context.Context, selector, text string) error {
	el, err := p.Find(ctx, selector, 0)
	if err != nil {
		return err
	}
	return el.Fill(ctx, text)
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	el, err := p.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		return fmt.Errorf("browser: wait visible %q: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("browser: wait visible %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) WaitGone(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.navTimeout
	}
	// Short probe: if the element is not there at all, it is gone.
	el, err := p.page.Context(ctx).Timeout(2 * time.Second).Element(selector)
	if err != nil {
		return nil
	}
	if err := el.Timeout(timeout).WaitInvisible(); err != nil {
		return fmt.Errorf("browser: wait gone %q: %w", selector, err)
	}
	return nil
}

func (p *rodPage) CurrentURL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("browser: page info: %w", err)
	}
	return info.URL, nil
}

func (p *rodPage) Screenshot(ctx context.Context, path string) error {
	data, err := p.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return fmt.Errorf("browser: screenshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("browser: screenshot write %s: %w", path, err)
	}
	return nil
}

func (p *rodPage) Alive(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := p.page.Context(probeCtx).Eval(`() => true`)
	return err == nil
}

func (p *rodPage) Close() error {
	if p.page == nil {
		return nil
	}
	return p.page.Close()
}

// rodElement implements Element over a Rod element.
type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Text(ctx context.Context) (string, error) {
	text, err := e.el.Context(ctx).Text()
	if err != nil {
		return "", fmt.Errorf("browser: element text: %w", err)
	}
	return text, nil
}

func (e *rodElement) Attribute(ctx context.Context, name string) (string, error) {
	val, err := e.el.Context(ctx).Attribute(name)
	if err != nil {
		return "", fmt.Errorf("browser: attribute %q: %w", name, err)
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

func (e *rodElement) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return fmt.Errorf("browser: scroll into view: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click: %w", err)
	}
	return nil
}

func (e *rodElement) Fill(ctx context.Context, text string) error {
	el := e.el.Context(ctx)
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: select text: %w", err)
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("browser: input: %w", err)
	}
	return nil
}

func (e *rodElement) Find(ctx context.Context, selector string) (Element, error) {
	el, err := e.el.Context(ctx).Element(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element find %q: %w", selector, err)
	}
	return &rodElement{el: el}, nil
}

func (e *rodElement) FindAll(ctx context.Context, selector string) ([]Element, error) {
	els, err := e.el.Context(ctx).Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("browser: element find all %q: %w", selector, err)
	}
	out := make([]Element, 0, len(els))
	for _, el := range els {
		out = append(out, &rodElement{el: el})
	}
	return out, nil
}
