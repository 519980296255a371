// Package browsertest provides scriptable in-memory implementations of the
// browser capability set for tests.
package browsertest

import (
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
)

var ErrNoElement = errors.New("no element matches selector")

// Frame is a fake document. Elements maps selectors to match counts; any
// selector not present counts as zero matches.
type Frame struct {
	FrameURL string
	Main     bool
	Elements map[string]int

	Filled  map[string]string
	Clicked []string
	Pressed []string
	Scripts []string

	OnClick    func(selector string)
	OnPress    func(selector, key string)
	EvalFunc   func(script string, args ...any) (any, error)
	CountErr   error
	InteractFn func(selector string) error
}

func NewFrame(url string, main bool) *Frame {
	return &Frame{
		FrameURL: url,
		Main:     main,
		Elements: map[string]int{},
		Filled:   map[string]string{},
	}
}

// Set records count matches for selector.
func (f *Frame) Set(selector string, count int) *Frame {
	f.Elements[selector] = count
	return f
}

func (f *Frame) URL() string  { return f.FrameURL }
func (f *Frame) IsMain() bool { return f.Main }

func (f *Frame) Count(selector string) (int, error) {
	if f.CountErr != nil {
		return 0, f.CountErr
	}
	return f.Elements[selector], nil
}

func (f *Frame) interact(selector string) error {
	if f.InteractFn != nil {
		if err := f.InteractFn(selector); err != nil {
			return err
		}
	}
	if f.Elements[selector] == 0 {
		return fmt.Errorf("%w: %s", ErrNoElement, selector)
	}
	return nil
}

func (f *Frame) Fill(selector, value string) error {
	if err := f.interact(selector); err != nil {
		return err
	}
	f.Filled[selector] = value
	return nil
}

func (f *Frame) Click(selector string) error {
	if err := f.interact(selector); err != nil {
		return err
	}
	f.Clicked = append(f.Clicked, selector)
	if f.OnClick != nil {
		f.OnClick(selector)
	}
	return nil
}

func (f *Frame) Press(selector, key string) error {
	if err := f.interact(selector); err != nil {
		return err
	}
	f.Pressed = append(f.Pressed, selector+":"+key)
	if f.OnPress != nil {
		f.OnPress(selector, key)
	}
	return nil
}

func (f *Frame) Evaluate(script string, args ...any) (any, error) {
	f.Scripts = append(f.Scripts, script)
	if f.EvalFunc != nil {
		return f.EvalFunc(script, args...)
	}
	return nil, nil
}

// Page is a fake tab. Its embedded Frame is the main document.
type Page struct {
	*Frame
	Children []*Frame

	Navigations []string
	PageTitle   string
	HTML        string
	BodyText    string
	Jar         []models.Cookie
	Shots       []string
	Closed      bool

	OnGoto       func(url string) error
	NavWaitErr   error
	ScreenshotFn func(path string) error
}

func NewPage(url string) *Page {
	return &Page{Frame: NewFrame(url, true)}
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Goto(url string) error {
	p.Navigations = append(p.Navigations, url)
	p.FrameURL = url
	if p.OnGoto != nil {
		return p.OnGoto(url)
	}
	return nil
}

func (p *Page) WaitForNavigation(time.Duration) error {
	return p.NavWaitErr
}

func (p *Page) Frames() []browser.Frame {
	out := []browser.Frame{p.Frame}
	for _, c := range p.Children {
		out = append(out, c)
	}
	return out
}

func (p *Page) Title() (string, error)   { return p.PageTitle, nil }
func (p *Page) Content() (string, error) { return p.HTML, nil }
func (p *Page) Text() (string, error)    { return p.BodyText, nil }

func (p *Page) Cookies() ([]models.Cookie, error) {
	return append([]models.Cookie(nil), p.Jar...), nil
}

func (p *Page) SetCookies(cookies []models.Cookie) error {
	p.Jar = append(p.Jar, cookies...)
	return nil
}

func (p *Page) Screenshot(path string) error {
	if p.ScreenshotFn != nil {
		if err := p.ScreenshotFn(path); err != nil {
			return err
		}
	}
	p.Shots = append(p.Shots, path)
	return nil
}

func (p *Page) Close() error {
	p.Closed = true
	return nil
}
