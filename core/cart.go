package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SyncErrorFunc receives background mirror failures. It must not block;
// it exists so applications can toast-report sync problems out of band.
type SyncErrorFunc func(op string, err error)

// DiscardFunc receives the local items a Hydrate threw away when it
// adopted the server's list. The no-merge policy is deliberate, but the
// loss should be observable rather than silent.
type DiscardFunc func(items []CartItem)

// CartStore maintains the working set of cart line items with an
// optimistic-update, server-reconciled discipline: every mutation is
// applied to local state immediately, then mirrored to the server in the
// background if and only if the session is authenticated.
//
// Local state is always the presentation truth; remote state is a
// lagging mirror corrected only at the next Hydrate. Mirror failures are
// logged and reported to the sync observer, never rolled back. A
// superseded mirror call may complete out of order; its result is
// discarded, so it can only perturb the server's transient view, never
// the visible cart.
type CartStore struct {
	gateway     *APIGateway
	session     *SessionManager
	breaker     *CircuitBreaker
	logger      Logger
	syncTimeout time.Duration

	mu     sync.Mutex
	items  []CartItem
	isOpen bool

	onOpen      func()
	onSyncError SyncErrorFunc
	onDiscard   DiscardFunc

	// wg tracks in-flight mirror calls so shutdown and tests can drain
	// them; no mutation ever waits on it.
	wg sync.WaitGroup
}

type cartAddRequest struct {
	ProductID ID  `json:"productId"`
	Quantity  int `json:"quantity"`
}

type cartUpdateRequest struct {
	Quantity int `json:"quantity"`
}

type cartEnvelope struct {
	Items    []serverCartItem `json:"items"`
	Subtotal float64          `json:"subtotal"`
}

// serverCartItem tolerates the remote cart's wire shape, which keys the
// line by a row id and omits fields older rows never had
type serverCartItem struct {
	ID        ID      `json:"id"`
	ProductID ID      `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	FarmName  string  `json:"farmName"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

func (w serverCartItem) toCartItem() CartItem {
	productID := w.ProductID
	if productID == "" {
		productID = w.ID
	}
	return CartItem{
		ProductID: productID,
		Name:      w.Name,
		Price:     w.Price,
		Unit:      w.Unit,
		FarmName:  w.FarmName,
		Image:     w.Image,
		Quantity:  w.Quantity,
	}
}

type orderResponse struct {
	Message string `json:"message"`
	OrderID ID     `json:"order_id"`
}

// NewCartStore creates a cart store bound to the given session. The cart
// hydrates itself whenever the session transitions to authenticated.
func NewCartStore(gateway *APIGateway, session *SessionManager, cfg *Config, logger Logger) *CartStore {
	if logger == nil {
		logger = &NoOpLogger{}
	}

	c := &CartStore{
		gateway:     gateway,
		session:     session,
		breaker:     NewCircuitBreaker("cart-sync", cfg.Sync.CircuitBreaker, logger),
		logger:      logger,
		syncTimeout: cfg.Sync.Timeout,
	}

	session.OnAuthChange(func(authenticated bool) {
		if !authenticated {
			return
		}
		// Background so Login/Restore callers are not gated on the
		// cart fetch.
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), c.syncTimeout)
			defer cancel()
			if err := c.Hydrate(ctx); err != nil {
				c.reportSyncError("cart_hydrate", err)
			}
		}()
	})

	return c
}

// OnOpen registers the UX observer fired whenever AddItem surfaces the cart
func (c *CartStore) OnOpen(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onOpen = fn
}

// OnSyncError registers the observer for background mirror failures
func (c *CartStore) OnSyncError(fn SyncErrorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSyncError = fn
}

// OnDiscard registers the observer for items Hydrate discards
func (c *CartStore) OnDiscard(fn DiscardFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDiscard = fn
}

// Items returns a copy of the current line items
func (c *CartStore) Items() []CartItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]CartItem, len(c.items))
	copy(items, c.items)
	return items
}

// TotalItems returns the sum of all line quantities, always recomputed
func (c *CartStore) TotalItems() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, item := range c.items {
		total += item.Quantity
	}
	return total
}

// Subtotal returns the sum of price times quantity, always recomputed
func (c *CartStore) Subtotal() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	subtotal := 0.0
	for _, item := range c.items {
		subtotal += item.Price * float64(item.Quantity)
	}
	return subtotal
}

// IsOpen reports whether the cart should currently be surfaced
func (c *CartStore) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isOpen
}

// SetOpen sets the cart's surfaced state
func (c *CartStore) SetOpen(open bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isOpen = open
}

// AddItem merges quantity onto an existing line with the same ProductID
// or appends a new line, then surfaces the cart. The quantity argument
// overrides item.Quantity when positive. Mirrored to the server in the
// background when authenticated.
func (c *CartStore) AddItem(item CartItem, quantity int) {
	if quantity <= 0 {
		quantity = item.Quantity
	}
	if quantity <= 0 {
		quantity = 1
	}

	c.mu.Lock()
	merged := false
	for i := range c.items {
		if c.items[i].ProductID == item.ProductID {
			c.items[i].Quantity += quantity
			merged = true
			break
		}
	}
	if !merged {
		item.Quantity = quantity
		c.items = append(c.items, item)
	}
	c.isOpen = true
	onOpen := c.onOpen
	c.mu.Unlock()

	c.logger.Debug("Cart item added", map[string]interface{}{
		"operation":  "cart_add",
		"product_id": item.ProductID.String(),
		"quantity":   quantity,
		"merged":     merged,
	})

	if onOpen != nil {
		onOpen()
	}

	c.mirror("cart_add", func(ctx context.Context) *APIResponse {
		return c.gateway.Post(ctx, "/api/cart", cartAddRequest{
			ProductID: item.ProductID,
			Quantity:  quantity,
		})
	})
}

// UpdateQuantity replaces the stored quantity for a product. A quantity
// of zero or less is equivalent to RemoveItem. A product not in the cart
// is a no-op.
func (c *CartStore) UpdateQuantity(productID ID, quantity int) {
	if quantity <= 0 {
		c.RemoveItem(productID)
		return
	}

	c.mu.Lock()
	found := false
	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items[i].Quantity = quantity
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return
	}

	c.logger.Debug("Cart quantity updated", map[string]interface{}{
		"operation":  "cart_update",
		"product_id": productID.String(),
		"quantity":   quantity,
	})

	c.mirror("cart_update", func(ctx context.Context) *APIResponse {
		return c.gateway.Put(ctx, "/api/cart/"+productID.String(), cartUpdateRequest{Quantity: quantity})
	})
}

// RemoveItem deletes the matching line. A product not in the cart is a
// no-op, not an error.
func (c *CartStore) RemoveItem(productID ID) {
	c.mu.Lock()
	found := false
	for i := range c.items {
		if c.items[i].ProductID == productID {
			c.items = append(c.items[:i], c.items[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()

	if !found {
		return
	}

	c.logger.Debug("Cart item removed", map[string]interface{}{
		"operation":  "cart_remove",
		"product_id": productID.String(),
	})

	c.mirror("cart_remove", func(ctx context.Context) *APIResponse {
		return c.gateway.Delete(ctx, "/api/cart/"+productID.String())
	})
}

// Clear empties the local list unconditionally. The server cart is not
// touched; checkout completion clears it remotely as a side effect of
// order placement.
func (c *CartStore) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()

	c.logger.Debug("Cart cleared", map[string]interface{}{
		"operation": "cart_clear",
	})
}

// Hydrate replaces the entire local item list with the server's
// authoritative list. Items added while anonymous are discarded by
// policy (reported to the discard observer). Invoked automatically on
// the transition to authenticated; callers may also invoke it as an
// explicit refresh.
func (c *CartStore) Hydrate(ctx context.Context) error {
	resp := c.gateway.Get(ctx, "/api/cart")
	if err := resp.Error(); err != nil {
		return NewClientError("cart.Hydrate", "cart", err)
	}

	var envelope cartEnvelope
	if err := resp.Decode(&envelope); err != nil {
		return NewClientError("cart.Hydrate", "cart", err)
	}

	items := make([]CartItem, 0, len(envelope.Items))
	for _, w := range envelope.Items {
		items = append(items, w.toCartItem())
	}

	c.mu.Lock()
	discarded := c.items
	c.items = items
	onDiscard := c.onDiscard
	c.mu.Unlock()

	if len(discarded) > 0 {
		c.logger.Warn("Hydrate discarded local cart items", map[string]interface{}{
			"operation": "cart_hydrate",
			"discarded": len(discarded),
			"adopted":   len(items),
		})
		if onDiscard != nil {
			onDiscard(discarded)
		}
	} else {
		c.logger.Debug("Cart hydrated", map[string]interface{}{
			"operation": "cart_hydrate",
			"adopted":   len(items),
		})
	}
	return nil
}

// Checkout places an order for the current cart. On success the local
// cart is cleared and the order id returned; on any failure the cart is
// left untouched so the user may retry. Unlike the mutation methods,
// Checkout is synchronous: the caller owns the outcome.
func (c *CartStore) Checkout(ctx context.Context, shippingAddress, paymentMethod string) (ID, error) {
	resp := c.gateway.Post(ctx, "/api/orders", map[string]string{
		"shippingAddress": shippingAddress,
		"paymentMethod":   paymentMethod,
	})
	if err := resp.Error(); err != nil {
		c.logger.Info("Checkout failed", map[string]interface{}{
			"operation": "cart_checkout",
			"status":    resp.Status,
			"error":     resp.Err,
		})
		return "", NewClientError("cart.Checkout", "cart", err)
	}

	var order orderResponse
	if err := resp.Decode(&order); err != nil {
		return "", NewClientError("cart.Checkout", "cart", err)
	}
	if order.OrderID == "" {
		return "", &ClientError{
			Op:      "cart.Checkout",
			Kind:    "cart",
			Message: "order response missing order id",
			Status:  resp.Status,
			Err:     fmt.Errorf("malformed checkout response"),
		}
	}

	c.Clear()
	c.logger.Info("Checkout complete", map[string]interface{}{
		"operation": "cart_checkout",
		"order_id":  order.OrderID.String(),
	})
	return order.OrderID, nil
}

// WaitSync blocks until all in-flight background mirror calls have
// finished. Intended for shutdown and tests; mutations never wait on it.
func (c *CartStore) WaitSync() {
	c.wg.Wait()
}

// mirror runs one best-effort remote persistence call in the background.
// The authenticated check happens at mutation time: a mutation made
// while anonymous is never mirrored, even if a login lands before the
// goroutine is scheduled.
func (c *CartStore) mirror(op string, call func(ctx context.Context) *APIResponse) {
	if !c.session.IsAuthenticated() {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.syncTimeout)
		defer cancel()

		err := c.breaker.Execute(ctx, func() error {
			return call(ctx).Error()
		})
		if err != nil {
			c.reportSyncError(op, err)
			return
		}
		c.logger.Debug("Cart mirrored", map[string]interface{}{
			"operation": op,
		})
	}()
}

func (c *CartStore) reportSyncError(op string, err error) {
	c.logger.Error("Cart sync failed", map[string]interface{}{
		"operation": op,
		"error":     err.Error(),
	})

	c.mu.Lock()
	onSyncError := c.onSyncError
	c.mu.Unlock()
	if onSyncError != nil {
		onSyncError(op, err)
	}
}
