package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// cartFixture wires a session manager and cart store against one fake
// remote, recording every request the mirror path makes.
type cartFixture struct {
	session *SessionManager
	cart    *CartStore

	mu       sync.Mutex
	requests []recordedRequest
	cartBody cartEnvelope
	failCart bool
}

type recordedRequest struct {
	Method string
	Path   string
	Body   string
}

func newCartFixture(t *testing.T) *cartFixture {
	t.Helper()
	f := &cartFixture{}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user":  User{ID: "7", Name: "Ana", Role: RoleCustomer},
			"token": "tok-1",
		})
	})
	mux.HandleFunc("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.failing() {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
			return
		}
		switch r.Method {
		case http.MethodGet:
			f.mu.Lock()
			body := f.cartBody
			f.mu.Unlock()
			json.NewEncoder(w).Encode(body)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(map[string]string{"message": "Item added to cart"})
		}
	})
	mux.HandleFunc("/api/cart/", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		if f.failing() {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": "boom"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Sync.Timeout = 2 * time.Second
	cfg.Sync.CircuitBreaker.Enabled = false

	gateway := NewAPIGateway(cfg, nil)
	f.session = NewSessionManager(gateway, NewMemoryCredentialStore(), nil)
	f.cart = NewCartStore(gateway, f.session, cfg, nil)
	return f
}

func (f *cartFixture) record(r *http.Request) {
	body := ""
	if r.Body != nil {
		data := make([]byte, 1024)
		n, _ := r.Body.Read(data)
		body = string(data[:n])
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	f.mu.Unlock()
}

func (f *cartFixture) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func (f *cartFixture) setServerCart(items ...serverCartItem) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cartBody = cartEnvelope{Items: items}
}

func (f *cartFixture) setFailing(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCart = fail
}

func (f *cartFixture) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failCart
}

func (f *cartFixture) login(t *testing.T) {
	t.Helper()
	require.True(t, f.session.Login(context.Background(), "ana@example.com", "secret", RoleCustomer))
	f.cart.WaitSync()
}

func testItem(productID ID, price float64) CartItem {
	return CartItem{
		ProductID: productID,
		Name:      "Tomatoes",
		Price:     price,
		Unit:      "kg",
		FarmName:  "Green Acres",
		Quantity:  1,
	}
}

func TestCartStore_AddItemMergesByProduct(t *testing.T) {
	f := newCartFixture(t)

	f.cart.AddItem(testItem("p1", 2.50), 2)
	f.cart.AddItem(testItem("p1", 2.50), 3)
	f.cart.AddItem(testItem("p2", 4.00), 1)

	items := f.cart.Items()
	require.Len(t, items, 2)
	assert.Equal(t, ID("p1"), items[0].ProductID)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, ID("p2"), items[1].ProductID)
	assert.Equal(t, 1, items[1].Quantity)

	assert.Equal(t, 6, f.cart.TotalItems())
	assert.InDelta(t, 2.50*5+4.00, f.cart.Subtotal(), 0.001)
}

func TestCartStore_AddItemDefaultsQuantity(t *testing.T) {
	f := newCartFixture(t)

	item := testItem("p1", 1.00)
	item.Quantity = 0
	f.cart.AddItem(item, 0)

	items := f.cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
}

func TestCartStore_AddItemOpensCart(t *testing.T) {
	f := newCartFixture(t)

	var opened int
	f.cart.OnOpen(func() { opened++ })

	assert.False(t, f.cart.IsOpen())
	f.cart.AddItem(testItem("p1", 1.00), 1)

	assert.True(t, f.cart.IsOpen())
	assert.Equal(t, 1, opened)

	f.cart.SetOpen(false)
	assert.False(t, f.cart.IsOpen())
}

func TestCartStore_UpdateQuantityNonPositiveRemoves(t *testing.T) {
	for _, quantity := range []int{0, -1} {
		f := newCartFixture(t)
		f.cart.AddItem(testItem("p1", 1.00), 2)

		f.cart.UpdateQuantity("p1", quantity)

		assert.Empty(t, f.cart.Items())
		assert.Equal(t, 0, f.cart.TotalItems())
	}
}

func TestCartStore_UpdateQuantityUnknownProductIsNoOp(t *testing.T) {
	f := newCartFixture(t)
	f.login(t)
	before := len(f.recorded())

	f.cart.UpdateQuantity("missing", 5)
	f.cart.WaitSync()

	assert.Empty(t, f.cart.Items())
	assert.Len(t, f.recorded(), before, "a no-op mutation is never mirrored")
}

func TestCartStore_RemoveItemUnknownProductIsNoOp(t *testing.T) {
	f := newCartFixture(t)
	f.cart.AddItem(testItem("p1", 1.00), 1)

	f.cart.RemoveItem("missing")

	assert.Len(t, f.cart.Items(), 1)
}

func TestCartStore_AnonymousMutationsAreNotMirrored(t *testing.T) {
	f := newCartFixture(t)

	f.cart.AddItem(testItem("p1", 1.00), 2)
	f.cart.UpdateQuantity("p1", 3)
	f.cart.RemoveItem("p1")
	f.cart.WaitSync()

	assert.Empty(t, f.recorded(), "no mirror calls while anonymous")
}

func TestCartStore_AuthenticatedMutationsAreMirrored(t *testing.T) {
	f := newCartFixture(t)
	f.login(t)
	base := len(f.recorded())

	f.cart.AddItem(testItem("41", 1.00), 2)
	f.cart.WaitSync()
	f.cart.UpdateQuantity("41", 5)
	f.cart.WaitSync()
	f.cart.RemoveItem("41")
	f.cart.WaitSync()

	recorded := f.recorded()[base:]
	require.Len(t, recorded, 3)

	assert.Equal(t, http.MethodPost, recorded[0].Method)
	assert.Equal(t, "/api/cart", recorded[0].Path)
	assert.JSONEq(t, `{"productId":"41","quantity":2}`, recorded[0].Body)

	assert.Equal(t, http.MethodPut, recorded[1].Method)
	assert.Equal(t, "/api/cart/41", recorded[1].Path)
	assert.JSONEq(t, `{"quantity":5}`, recorded[1].Body)

	assert.Equal(t, http.MethodDelete, recorded[2].Method)
	assert.Equal(t, "/api/cart/41", recorded[2].Path)
}

func TestCartStore_MirrorFailureKeepsLocalState(t *testing.T) {
	f := newCartFixture(t)
	f.login(t)
	f.setFailing(true)

	var syncErrs []error
	var mu sync.Mutex
	f.cart.OnSyncError(func(op string, err error) {
		mu.Lock()
		syncErrs = append(syncErrs, err)
		mu.Unlock()
	})

	f.cart.AddItem(testItem("p1", 1.00), 2)
	f.cart.WaitSync()

	// Local state is never rolled back by a failed mirror.
	require.Len(t, f.cart.Items(), 1)
	assert.Equal(t, 2, f.cart.Items()[0].Quantity)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, syncErrs, 1)
	assert.True(t, IsServerFault(syncErrs[0]))
}

func TestCartStore_LoginHydratesAndDiscardsLocalItems(t *testing.T) {
	f := newCartFixture(t)
	f.setServerCart(
		serverCartItem{ID: "10", ProductID: "41", Name: "Carrots", Price: 1.20, Quantity: 3},
	)

	var discarded []CartItem
	f.cart.OnDiscard(func(items []CartItem) { discarded = items })

	// Items added while anonymous are replaced, not merged, on login.
	f.cart.AddItem(testItem("p1", 2.00), 2)
	f.login(t)

	items := f.cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, ID("41"), items[0].ProductID)
	assert.Equal(t, "Carrots", items[0].Name)
	assert.Equal(t, 3, items[0].Quantity)

	require.Len(t, discarded, 1)
	assert.Equal(t, ID("p1"), discarded[0].ProductID)
}

func TestCartStore_HydrateFallsBackToRowID(t *testing.T) {
	f := newCartFixture(t)
	f.setServerCart(serverCartItem{ID: "10", Name: "Eggs", Price: 3.00, Quantity: 1})
	f.login(t)

	items := f.cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, ID("10"), items[0].ProductID)
}

func TestCartStore_HydrateWhileAnonymousFails(t *testing.T) {
	f := newCartFixture(t)

	err := f.cart.Hydrate(context.Background())
	require.Error(t, err)
	assert.True(t, IsAuthRejected(err))
}

func TestCartStore_ClearIsLocalOnly(t *testing.T) {
	f := newCartFixture(t)
	f.login(t)
	base := len(f.recorded())

	f.cart.AddItem(testItem("p1", 1.00), 1)
	f.cart.WaitSync()
	f.cart.Clear()
	f.cart.WaitSync()

	assert.Empty(t, f.cart.Items())
	assert.Len(t, f.recorded(), base+1, "clear makes no remote call")
}

func TestCartStore_CheckoutSuccessClearsCart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message":  "Order placed successfully",
			"order_id": 42,
		})
	})
	f := newCheckoutFixture(t, mux)
	f.cart.AddItem(testItem("p1", 2.00), 3)

	orderID, err := f.cart.Checkout(context.Background(), "12 Farm Lane", "card")
	require.NoError(t, err)
	assert.Equal(t, ID("42"), orderID)
	assert.Empty(t, f.cart.Items(), "successful checkout empties the local cart")
}

func TestCartStore_CheckoutFailureLeavesCartUntouched(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "database error"})
	})
	f := newCheckoutFixture(t, mux)
	f.cart.AddItem(testItem("p1", 2.00), 3)

	_, err := f.cart.Checkout(context.Background(), "12 Farm Lane", "card")
	require.Error(t, err)
	assert.True(t, IsServerFault(err))

	items := f.cart.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].Quantity, "failed checkout preserves the cart for retry")
}

func TestCartStore_CheckoutMalformedResponse(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})
	f := newCheckoutFixture(t, mux)
	f.cart.AddItem(testItem("p1", 2.00), 1)

	_, err := f.cart.Checkout(context.Background(), "12 Farm Lane", "card")
	require.Error(t, err)
	assert.Len(t, f.cart.Items(), 1)
}

// newCheckoutFixture builds an authenticated cart against a custom mux.
// The auth and cart endpoints are added so login and hydrate succeed.
func newCheckoutFixture(t *testing.T, mux *http.ServeMux) *cartFixture {
	t.Helper()
	f := &cartFixture{}

	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user":  User{ID: "7", Role: RoleCustomer},
			"token": "tok-1",
		})
	})
	mux.HandleFunc("/api/cart", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(cartEnvelope{})
			return
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"message": "ok"})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Sync.Timeout = 2 * time.Second
	cfg.Sync.CircuitBreaker.Enabled = false

	gateway := NewAPIGateway(cfg, nil)
	f.session = NewSessionManager(gateway, NewMemoryCredentialStore(), nil)
	f.cart = NewCartStore(gateway, f.session, cfg, nil)
	f.login(t)
	return f
}
