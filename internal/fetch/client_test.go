package fetch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/maltedev/dealer-portal-scraper/internal/browser"
	"github.com/maltedev/dealer-portal-scraper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T, baseURL string) (*Client, *httpmock.MockTransport) {
	t.Helper()
	client, err := New(Options{BaseURL: baseURL}, slog.Default())
	require.NoError(t, err)

	transport := httpmock.NewMockTransport()
	client.SetTransport(transport)
	return client, transport
}

func redirectResponder(location string) httpmock.Responder {
	return func(*http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(http.StatusFound, "")
		resp.Header.Set("Location", location)
		return resp, nil
	}
}

var session = &models.Session{Cookies: []models.Cookie{{Name: "sid", Value: "abc"}, {Name: "cart", Value: "1"}}}

func TestRequestSendsSessionAndUserAgent(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")

	var got *http.Request
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/HW-1",
		func(req *http.Request) (*http.Response, error) {
			got = req
			return httpmock.NewStringResponse(http.StatusOK, `<span data-dealer-price="3.49">`), nil
		})

	resp, err := client.Request(context.Background(), "/catalog/item/HW-1", session,
		RequestOptions{Query: map[string]string{"category": "hardwood"}})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(resp.Body), "data-dealer-price")
	require.NotNil(t, got)
	assert.Equal(t, "sid=abc; cart=1", got.Header.Get("Cookie"))
	assert.Equal(t, browser.DefaultUserAgent, got.Header.Get("User-Agent"))
	assert.Equal(t, "hardwood", got.URL.Query().Get("category"))
}

func TestRequestWithoutSession(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")

	var cookie string
	transport.RegisterResponder("GET", "https://dealers.example.com/public/item/HW-1",
		func(req *http.Request) (*http.Response, error) {
			cookie = req.Header.Get("Cookie")
			return httpmock.NewStringResponse(http.StatusOK, "public"), nil
		})

	_, err := client.Request(context.Background(), "/public/item/HW-1", nil, RequestOptions{})
	require.NoError(t, err)
	assert.Empty(t, cookie)
}

func TestRequestLoginRedirectIsSessionExpiry(t *testing.T) {
	locations := []string{
		"/Account/Login?ReturnUrl=%2Fcatalog",
		"https://dealers.example.com/LOGIN",
		"/auth/SignIn",
		"https://sso.example.com/oauth/signin?next=/catalog",
		"/user/login.aspx",
	}

	for _, location := range locations {
		t.Run(location, func(t *testing.T) {
			client, transport := newMockClient(t, "https://dealers.example.com")
			transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/HW-1", redirectResponder(location))

			_, err := client.Request(context.Background(), "/catalog/item/HW-1", session, RequestOptions{})

			require.ErrorIs(t, err, models.ErrSessionExpired)
			var expired *models.SessionExpiredError
			require.ErrorAs(t, err, &expired)
			assert.Equal(t, location, expired.Location)
			// the login page itself is never requested
			assert.Equal(t, 1, transport.GetTotalCallCount())
		})
	}
}

func TestRequestFollowsOtherRedirects(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/OLD-1", redirectResponder("/catalog/item/NEW-1"))
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/NEW-1",
		httpmock.NewStringResponder(http.StatusOK, "moved here"))

	resp, err := client.Request(context.Background(), "/catalog/item/OLD-1", session, RequestOptions{})
	require.NoError(t, err)

	assert.Equal(t, "https://dealers.example.com/catalog/item/NEW-1", resp.URL)
	assert.Equal(t, "moved here", string(resp.Body))
}

func TestRequestRedirectLoop(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")
	transport.RegisterResponder("GET", "https://dealers.example.com/a", redirectResponder("/b"))
	transport.RegisterResponder("GET", "https://dealers.example.com/b", redirectResponder("/a"))

	_, err := client.Request(context.Background(), "/a", session, RequestOptions{})
	assert.ErrorIs(t, err, errTooManyRedirects)
	assert.False(t, errors.Is(err, models.ErrSessionExpired))
}

func TestRequestStatusError(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/GONE",
		httpmock.NewStringResponder(http.StatusNotFound, "not found"))

	_, err := client.Request(context.Background(), "/catalog/item/GONE", session, RequestOptions{})

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}

func TestRequestAgainstServer(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/portal/catalog/item/HW-2", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sid"); err != nil {
			http.Redirect(w, r, "/portal/Account/Login", http.StatusFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Options{BaseURL: server.URL + "/portal"}, slog.Default())
	require.NoError(t, err)

	resp, err := client.Request(context.Background(), "/catalog/item/HW-2", session, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(resp.Body))

	_, err = client.Request(context.Background(), "/catalog/item/HW-2", &models.Session{}, RequestOptions{})
	assert.ErrorIs(t, err, models.ErrSessionExpired)
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: "not a url"}, slog.Default())
	assert.Error(t, err)
}

func TestRequestRefusesForeignRedirect(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")

	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/HW-1",
		redirectResponder("https://cdn.other.example/item/HW-1"))

	var leaked []string
	transport.RegisterResponder("GET", "https://cdn.other.example/item/HW-1",
		func(req *http.Request) (*http.Response, error) {
			leaked = append(leaked, req.Header.Get("Cookie"))
			return httpmock.NewStringResponse(http.StatusOK, "cdn"), nil
		})

	_, err := client.Request(context.Background(), "/catalog/item/HW-1", session, RequestOptions{})
	require.ErrorIs(t, err, ErrForeignHost)
	assert.Empty(t, leaked)
	assert.NotErrorIs(t, err, models.ErrSessionExpired)
}

func TestRequestFollowsSameHostRedirectWithCookies(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")

	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/HW-1",
		redirectResponder("https://dealers.example.com/catalog/item/HW-1/detail"))

	var cookie string
	transport.RegisterResponder("GET", "https://dealers.example.com/catalog/item/HW-1/detail",
		func(req *http.Request) (*http.Response, error) {
			cookie = req.Header.Get("Cookie")
			return httpmock.NewStringResponse(http.StatusOK, "detail"), nil
		})

	resp, err := client.Request(context.Background(), "/catalog/item/HW-1", session, RequestOptions{})
	require.NoError(t, err)
	assert.Equal(t, "detail", string(resp.Body))
	assert.Equal(t, "sid=abc; cart=1", cookie)
}

func TestSameHost(t *testing.T) {
	client, _ := newMockClient(t, "https://dealers.example.com/portal")

	tests := []struct {
		raw      string
		expected bool
	}{
		{"https://dealers.example.com/catalog", true},
		{"https://DEALERS.Example.com/catalog", true},
		{"https://dealers.example.com:8443/catalog", false},
		{"https://cdn.dealers.example.com/img", false},
		{"https://other.example/catalog", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := url.Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, client.sameHost(u))
		})
	}
}

func TestRequestRefusesForeignURL(t *testing.T) {
	client, transport := newMockClient(t, "https://dealers.example.com")

	_, err := client.Request(context.Background(), "https://other.example/catalog", session, RequestOptions{})
	require.ErrorIs(t, err, ErrForeignHost)
	assert.Zero(t, transport.GetTotalCallCount())
}
