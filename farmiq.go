// Package farmiq is the client SDK for the FarmIQ farm-marketplace API.
// It re-exports from the core package and offers Client, the one-per-
// process composition of the session manager, cart store, catalog, and
// supporting services.
//
// The session/cart pair is the SDK's heart: local state is always the
// presentation truth, the server is a lagging mirror, and the two are
// reconciled only at hydrate time. See core for the full semantics.
package farmiq

import (
	"context"
	"io"

	"github.com/Mr-Thop/FarmIQ-sub000/core"
)

// Re-export core types
type (
	// Configuration types
	Config               = core.Config
	Option               = core.Option
	HTTPConfig           = core.HTTPConfig
	CredentialConfig     = core.CredentialConfig
	CacheConfig          = core.CacheConfig
	SyncConfig           = core.SyncConfig
	CircuitBreakerConfig = core.CircuitBreakerConfig
	TelemetryConfig      = core.TelemetryConfig
	LoggingConfig        = core.LoggingConfig

	// Domain types
	ID        = core.ID
	Role      = core.Role
	User      = core.User
	CartItem  = core.CartItem
	Product   = core.Product
	Farm      = core.Farm
	FarmInput = core.FarmInput
	Order     = core.Order
	OrderItem = core.OrderItem

	// Components
	APIGateway     = core.APIGateway
	APIResponse    = core.APIResponse
	SessionManager = core.SessionManager
	CartStore      = core.CartStore
	Catalog        = core.Catalog
	ProductFilter  = core.ProductFilter
	OrderService   = core.OrderService
	FarmService    = core.FarmService

	// Interfaces
	Logger          = core.Logger
	Memory          = core.Memory
	CredentialStore = core.CredentialStore
	Credentials     = core.Credentials
	SyncErrorFunc   = core.SyncErrorFunc
	DiscardFunc     = core.DiscardFunc
)

// Re-export constants
const (
	RoleFarmer   = core.RoleFarmer
	RoleCustomer = core.RoleCustomer
)

// Re-export core functions
var (
	NewConfig     = core.NewConfig
	DefaultConfig = core.DefaultConfig
	LoadEnvFile   = core.LoadEnvFile

	// Configuration options
	WithBaseURL         = core.WithBaseURL
	WithHTTPTimeout     = core.WithHTTPTimeout
	WithCredentialsPath = core.WithCredentialsPath
	WithRedisURL        = core.WithRedisURL
	WithoutCache        = core.WithoutCache
	WithCacheTTL        = core.WithCacheTTL
	WithTelemetry       = core.WithTelemetry
	WithLogLevel        = core.WithLogLevel

	// Error classification
	IsAuthRejected       = core.IsAuthRejected
	IsNetworkUnavailable = core.IsNetworkUnavailable
	IsServerFault        = core.IsServerFault
)

// Client bundles the SDK's components, constructed once at application
// start and injected into consumers. There are no ambient singletons:
// all shared state lives behind this value.
type Client struct {
	Config  *core.Config
	Logger  core.Logger
	Gateway *core.APIGateway
	Session *core.SessionManager
	Cart    *core.CartStore
	Catalog *core.Catalog
	Orders  *core.OrderService
	Farms   *core.FarmService

	credStore core.CredentialStore
	cache     core.Memory
}

// NewClient builds a fully wired client from defaults, environment, and
// the given options
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	logger := core.NewClientLogger("farmiq-client")
	logger.SetLevel(cfg.Logging.Level)

	gateway := core.NewAPIGateway(cfg, logger)

	credStore, err := core.NewCredentialStore(cfg)
	if err != nil {
		return nil, err
	}

	cache, err := core.NewCacheStore(cfg)
	if err != nil {
		return nil, err
	}

	session := core.NewSessionManager(gateway, credStore, logger)
	cart := core.NewCartStore(gateway, session, cfg, logger)

	return &Client{
		Config:    cfg,
		Logger:    logger,
		Gateway:   gateway,
		Session:   session,
		Cart:      cart,
		Catalog:   core.NewCatalog(gateway, cache, cfg, logger),
		Orders:    core.NewOrderService(gateway, logger),
		Farms:     core.NewFarmService(gateway, logger),
		credStore: credStore,
		cache:     cache,
	}, nil
}

// Restore adopts any persisted session. Call once at startup; it is
// best-effort and degrades silently to an anonymous session.
func (c *Client) Restore(ctx context.Context) {
	c.Session.Restore(ctx)
}

// Close drains in-flight cart mirror calls and releases any store
// connections
func (c *Client) Close() error {
	c.Cart.WaitSync()

	var firstErr error
	if closer, ok := c.credStore.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if closer, ok := c.cache.(io.Closer); ok {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
