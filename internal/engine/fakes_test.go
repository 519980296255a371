package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/fetch"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/stretchr/testify/mock"
)

// events is a shared call log used to assert ordering across fakes.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, fmt.Sprintf(format, args...))
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

type mockAuth struct {
	mock.Mock
	events *events
}

func (m *mockAuth) Authenticate(ctx context.Context, page browser.Page) (*models.Session, error) {
	if m.events != nil {
		m.events.add("auth")
	}
	args := m.Called(ctx, page)
	session, _ := args.Get(0).(*models.Session)
	return session, args.Error(1)
}

// fakeFetcher serves DealerNet-shaped detail pages. fail decides per item
// code and session whether the request errors.
type fakeFetcher struct {
	events   *events
	fail     func(code string, session *models.Session) error
	sessions []*models.Session
}

func (f *fakeFetcher) Request(_ context.Context, path string, session *models.Session, _ fetch.RequestOptions) (*fetch.Response, error) {
	code := path[strings.LastIndex(path, "/")+1:]
	if f.events != nil {
		f.events.add("fetch:%s", code)
	}
	f.sessions = append(f.sessions, session)

	if f.fail != nil {
		if err := f.fail(code, session); err != nil {
			return nil, err
		}
	}
	return &fetch.Response{StatusCode: http.StatusOK, Body: []byte(detailPage(code))}, nil
}

func detailPage(code string) string {
	return fmt.Sprintf(`<div class="item-detail"><h1 class="item-name">Item %s</h1>
		<span class="dealer-price" data-dealer-price="2.50">$2.50 / SF</span></div>`, code)
}

var errServer = &fetch.StatusError{StatusCode: http.StatusInternalServerError, URL: "https://dealers.example.com"}

type recordingSink struct {
	lines       []string
	errors      []string
	checkpoints []models.Checkpoint
	fail        bool
}

func (s *recordingSink) AppendLine(_ context.Context, text string, cp *models.Checkpoint) error {
	s.lines = append(s.lines, text)
	if cp != nil {
		s.checkpoints = append(s.checkpoints, *cp)
	}
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

func (s *recordingSink) RecordError(_ context.Context, text string) error {
	s.errors = append(s.errors, text)
	if s.fail {
		return errors.New("sink unavailable")
	}
	return nil
}

type memStore struct {
	rows map[string]models.Result
	fail map[string]bool
}

func newMemStore() *memStore {
	return &memStore{rows: map[string]models.Result{}, fail: map[string]bool{}}
}

func (m *memStore) Upsert(_ context.Context, result *models.Result) (bool, error) {
	if m.fail[result.ItemCode] {
		return false, errors.New("connection reset")
	}
	_, exists := m.rows[result.ItemCode]
	m.rows[result.ItemCode] = *result
	return !exists, nil
}

type countingRecorder struct {
	outcomes map[string]int
	reauths  []bool
}

func (c *countingRecorder) ItemProcessed(_, _, outcome string) {
	if c.outcomes == nil {
		c.outcomes = map[string]int{}
	}
	c.outcomes[outcome]++
}

func (c *countingRecorder) Reauthenticated(_ string, ok bool) {
	c.reauths = append(c.reauths, ok)
}

type noWait struct{ waits int }

func (n *noWait) Wait(ctx context.Context) error {
	n.waits++
	return ctx.Err()
}

type emptyFetcher struct{}

func (emptyFetcher) Request(context.Context, string, *models.Session, fetch.RequestOptions) (*fetch.Response, error) {
	return &fetch.Response{StatusCode: http.StatusOK, Body: []byte(`<div class="no-results">Nothing</div>`)}, nil
}
