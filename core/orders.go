package core

import (
	"context"
)

// OrderService reads and manages the authenticated user's order history.
// Every path is privileged, so the gateway short-circuits anonymous
// calls with a synthesized 401.
type OrderService struct {
	gateway *APIGateway
	logger  Logger
}

// NewOrderService creates an order history client
func NewOrderService(gateway *APIGateway, logger Logger) *OrderService {
	if logger == nil {
		logger = &NoOpLogger{}
	}
	return &OrderService{gateway: gateway, logger: logger}
}

// ListOrders fetches the user's orders, newest first
func (o *OrderService) ListOrders(ctx context.Context) ([]Order, error) {
	resp := o.gateway.Get(ctx, "/api/orders")
	if err := resp.Error(); err != nil {
		return nil, NewClientError("orders.ListOrders", "orders", err)
	}

	var envelope struct {
		Orders []Order `json:"orders"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return nil, NewClientError("orders.ListOrders", "orders", err)
	}
	return envelope.Orders, nil
}

// GetOrder fetches one order with its purchased lines
func (o *OrderService) GetOrder(ctx context.Context, id ID) (*Order, error) {
	resp := o.gateway.Get(ctx, "/api/orders/"+id.String())
	if err := resp.Error(); err != nil {
		return nil, NewClientError("orders.GetOrder", "orders", err)
	}

	var envelope struct {
		Order Order `json:"order"`
	}
	if err := resp.Decode(&envelope); err != nil {
		return nil, NewClientError("orders.GetOrder", "orders", err)
	}
	return &envelope.Order, nil
}

// CancelOrder requests cancellation; returns true when the server accepts
func (o *OrderService) CancelOrder(ctx context.Context, id ID) bool {
	resp := o.gateway.Post(ctx, "/api/orders/"+id.String()+"/cancel", nil)
	if !resp.OK() {
		o.logger.Info("Order cancellation rejected", map[string]interface{}{
			"operation": "orders_cancel",
			"order_id":  id.String(),
			"status":    resp.Status,
		})
		return false
	}
	return true
}
