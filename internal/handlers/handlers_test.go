package handlers

import (
	"context"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alextreichler/minishop/internal/cart"
	"github.com/alextreichler/minishop/internal/catalog"
	"github.com/alextreichler/minishop/internal/checkout"
	"github.com/alextreichler/minishop/internal/gate"
	"github.com/alextreichler/minishop/internal/models"
	"github.com/alextreichler/minishop/internal/storage"
	"github.com/alextreichler/minishop/templates"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	return f[username], nil
}

// brokenStorage reads fine but never accepts a write.
type brokenStorage struct {
	*storage.Memory
}

func (brokenStorage) Put(context.Context, string, []byte) error {
	return errors.New("disk full")
}

type testShop struct {
	server  *httptest.Server
	client  *http.Client
	storage storage.Store
}

type shopOption func(*Routes)

func withHealth(check func(context.Context) error) shopOption {
	return func(rt *Routes) { rt.Health = check }
}

func newTestShop(t *testing.T, s storage.Store, opts ...shopOption) *testShop {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret"), bcrypt.MinCost)
	require.NoError(t, err)

	tc := NewTemplateCache()
	require.NoError(t, tc.Load(templates.FS))

	common := Common{
		SessionStore: NewSessionStore([]byte("0123456789abcdef0123456789abcdef"), false, ""),
		Templates:    tc,
		Gate:         gate.New(time.Hour, false),
		Carts:        cart.NewRegistry(s),
	}
	rt := Routes{
		Shop: &ShopHandler{
			Common:   common,
			Catalog:  catalog.New(),
			Checkout: checkout.NewService(s),
		},
		Auth: &AuthHandler{
			Common: common,
			Users:  fakeUsers{"demo": {ID: 1, Username: "demo", Password: string(hash)}},
		},
		Static: templates.Static(),
	}
	for _, opt := range opts {
		opt(&rt)
	}

	srv := httptest.NewServer(NewRouter(rt))
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testShop{server: srv, client: client, storage: s}
}

func (ts *testShop) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := ts.client.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func (ts *testShop) post(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := ts.client.PostForm(ts.server.URL+path, form)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func (ts *testShop) login(t *testing.T) {
	t.Helper()
	resp := ts.post(t, "/login", url.Values{"username": {"demo"}, "password": {"secret"}})
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestGate_RedirectsAnonymousToLogin(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	for _, path := range []string{"/products", "/checkout", "/receipt/ORD-ABCDEFGH"} {
		resp, _ := ts.get(t, path)
		assert.Equal(t, http.StatusSeeOther, resp.StatusCode, path)
		assert.Equal(t, "/login?redirect="+url.QueryEscape(path), resp.Header.Get("Location"), path)
	}
}

func TestLogin_ForwardsToRequestedPath(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp := ts.post(t, "/login", url.Values{
		"username": {"demo"},
		"password": {"secret"},
		"redirect": {"/checkout"},
	})

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/checkout", resp.Header.Get("Location"))

	resp, _ = ts.get(t, "/checkout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLogin_RejectsForeignRedirect(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp := ts.post(t, "/login", url.Values{
		"username": {"demo"},
		"password": {"secret"},
		"redirect": {"//evil.example/phish"},
	})

	assert.Equal(t, "/products", resp.Header.Get("Location"))
}

func TestLogin_WrongPassword(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp := ts.post(t, "/login", url.Values{
		"username": {"demo"},
		"password": {"wrong"},
		"redirect": {"/products"},
	})
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login?redirect=%2Fproducts", resp.Header.Get("Location"))

	resp, body := ts.get(t, "/login")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Invalid username or password")

	resp, _ = ts.get(t, "/products")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode, "still anonymous")
}

func TestLogout_ClearsFlag(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp := ts.post(t, "/logout", nil)
	assert.Equal(t, "/login", resp.Header.Get("Location"))

	resp, _ = ts.get(t, "/products")
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
}

func TestNewSessionStore(t *testing.T) {
	key := []byte("0123456789abcdef0123456789abcdef")

	plain := NewSessionStore(key, false, "")
	assert.False(t, plain.Options.Secure)
	assert.True(t, plain.Options.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, plain.Options.SameSite)
	assert.Equal(t, "/", plain.Options.Path)
	assert.Empty(t, plain.Options.Domain)

	tls := NewSessionStore(key, true, "shop.example")
	assert.True(t, tls.Options.Secure)
	assert.Equal(t, "shop.example", tls.Options.Domain)
}

func TestSessionCookie_KeptOverPlainHTTP(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp := ts.post(t, "/products/1/add", nil)
	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == SessionName {
			session = c
		}
	}
	require.NotNil(t, session, "add sets the session cookie")
	assert.False(t, session.Secure)
	assert.Equal(t, http.SameSiteLaxMode, session.SameSite)

	u, err := url.Parse(ts.server.URL)
	require.NoError(t, err)
	names := []string{}
	for _, c := range ts.client.Jar.Cookies(u) {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, SessionName)
	assert.Contains(t, names, gate.CookieName)

	_, body := ts.get(t, "/checkout")
	assert.Contains(t, body, "Wireless Bluetooth Headphones")
}

var receiptPath = regexp.MustCompile(`^/receipt/(ORD-[A-Z2-9]{8})$`)

func TestCheckoutFlow(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp, body := ts.get(t, "/products")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Wireless Bluetooth Headphones")
	assert.Contains(t, body, "$79.99")

	ts.post(t, "/products/1/add", nil)
	ts.post(t, "/products/2/add", nil)
	resp = ts.post(t, "/products/2/add", nil)
	assert.Equal(t, "/products", resp.Header.Get("Location"))

	resp, body = ts.get(t, "/checkout")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "$129.97")
	assert.Contains(t, body, "Tax (8.25%)")
	assert.Contains(t, body, "$10.72")
	assert.Contains(t, body, "$140.69")
	assert.Contains(t, body, "Pay with Prop Money")

	resp = ts.post(t, "/checkout/pay", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	m := receiptPath.FindStringSubmatch(resp.Header.Get("Location"))
	require.NotNil(t, m, "location %q", resp.Header.Get("Location"))

	resp, body = ts.get(t, "/receipt/"+m[1])
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Order ID: "+m[1])
	assert.Contains(t, body, "Qty: 2")
	assert.Contains(t, body, "$49.98")
	assert.Contains(t, body, "$140.69")

	_, body = ts.get(t, "/checkout")
	assert.Contains(t, body, "Your Cart is Empty")
	assert.NotContains(t, body, "Pay with Prop Money")
}

func TestPay_EmptyCart(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp := ts.post(t, "/checkout/pay", nil)

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/checkout", resp.Header.Get("Location"))
}

func TestSetQuantityAndRemove(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)
	ts.post(t, "/products/6/add", nil)

	ts.post(t, "/checkout/items/6/quantity", url.Values{"qty": {"3"}})
	_, body := ts.get(t, "/checkout")
	assert.Contains(t, body, "$389.97")

	ts.post(t, "/checkout/items/6/quantity", url.Values{"qty": {"-2"}})
	_, body = ts.get(t, "/checkout")
	assert.Contains(t, body, "$389.97", "negative quantity ignored")

	ts.post(t, "/checkout/items/6/quantity", url.Values{"qty": {"lots"}})
	_, body = ts.get(t, "/checkout")
	assert.NotContains(t, body, "$389.97", "unparsable quantity counts as 1")
	assert.Contains(t, body, `value="1"`)

	resp := ts.post(t, "/checkout/items/6/remove", nil)
	assert.Equal(t, "/checkout", resp.Header.Get("Location"))
	_, body = ts.get(t, "/checkout")
	assert.Contains(t, body, "Your Cart is Empty")
}

func TestAddToCart_UnknownItem(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp := ts.post(t, "/products/999/add", nil)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCartPersistenceFailure_KeepsCartAndWarns(t *testing.T) {
	ts := newTestShop(t, brokenStorage{Memory: storage.NewMemory()})
	ts.login(t)

	resp := ts.post(t, "/products/1/add", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp, body := ts.get(t, "/checkout")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Your cart could not be saved")
	assert.Contains(t, body, "Wireless Bluetooth Headphones")
}

func TestReceipt_NotFound(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.login(t)

	resp, body := ts.get(t, "/receipt/ORD-ZZZZZZZZ")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Receipt Not Found")
	assert.Contains(t, body, "Continue Shopping")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp, body := ts.get(t, "/nowhere")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "Page not found")
}

func TestRoot_RedirectsToProducts(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp, _ := ts.get(t, "/")

	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/products", resp.Header.Get("Location"))
}

func TestIcon(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp, err := ts.client.Get(ts.server.URL + "/icon.png")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())
	assert.Equal(t, 32, img.Bounds().Dy())
}

func TestHealthz(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	resp, body := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body)

	failing := newTestShop(t, storage.NewMemory(), withHealth(func(context.Context) error {
		return errors.New("db down")
	}))
	resp, _ = failing.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())
	ts.get(t, "/healthz")

	resp, body := ts.get(t, "/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(body, "minishop_http_requests_total"))
}

func TestStaticAssets(t *testing.T) {
	ts := newTestShop(t, storage.NewMemory())

	resp, body := ts.get(t, "/static/print.js")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "window.print")
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(time.Minute)
	h := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:4000"))
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1:4001"), "same host, new port")
	assert.Equal(t, http.StatusNoContent, send("10.0.0.2:4000"))

	rl.sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, http.StatusNoContent, send("10.0.0.1:4002"))
}
