package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erazemk/darila/internal/db"
	"github.com/erazemk/darila/internal/fanout"
	"github.com/erazemk/darila/internal/metrics"
	"github.com/erazemk/darila/internal/scrape"
	"github.com/erazemk/darila/internal/service"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	DB          *db.DB
	Items       service.Items
	Hub         *fanout.Hub
	Scraper     *scrape.Scraper
	JWTSecret   string
	TokenExpiry time.Duration
	CORSOrigins []string
}

// NewRouter creates the API router with all endpoints registered.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: d.DB, JWTSecret: d.JWTSecret, TokenExpiry: d.TokenExpiry}
	wishlistsHandler := &WishlistsHandler{DB: d.DB}
	itemsHandler := &ItemsHandler{DB: d.DB, Items: d.Items}
	scrapeHandler := &ScrapeHandler{Scraper: d.Scraper}
	healthHandler := &HealthHandler{DB: d.DB}
	liveHandler := &LiveHandler{
		DB:        d.DB,
		Hub:       d.Hub,
		JWTSecret: d.JWTSecret,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     allowedOrigin(d.CORSOrigins),
		},
	}

	authMW := AuthMiddleware(d.JWTSecret, d.DB)
	optionalAuth := OptionalAuth(d.JWTSecret, d.DB)

	// Public.
	mux.HandleFunc("GET /api/health", healthHandler.Health)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("POST /api/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)
	mux.HandleFunc("GET /api/items/{item_id}/image", itemsHandler.GetImage)

	// Account.
	mux.Handle("GET /api/auth/me", authMW(http.HandlerFunc(authHandler.Me)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))

	// Owner wishlists and items.
	mux.Handle("POST /api/wishlists", authMW(http.HandlerFunc(wishlistsHandler.Create)))
	mux.Handle("GET /api/wishlists", authMW(http.HandlerFunc(wishlistsHandler.List)))
	mux.Handle("GET /api/wishlists/{id}", authMW(http.HandlerFunc(wishlistsHandler.Get)))
	mux.Handle("PATCH /api/wishlists/{id}", authMW(http.HandlerFunc(wishlistsHandler.Update)))
	mux.Handle("DELETE /api/wishlists/{id}", authMW(http.HandlerFunc(wishlistsHandler.Delete)))
	mux.Handle("POST /api/wishlists/{id}/items", authMW(http.HandlerFunc(itemsHandler.Create)))
	mux.Handle("PATCH /api/wishlists/{id}/items/{item_id}", authMW(http.HandlerFunc(itemsHandler.Update)))
	mux.Handle("POST /api/wishlists/{id}/items/{item_id}/archive", authMW(http.HandlerFunc(itemsHandler.Archive)))
	mux.Handle("POST /api/wishlists/{id}/items/{item_id}/unarchive", authMW(http.HandlerFunc(itemsHandler.Unarchive)))
	mux.Handle("PUT /api/wishlists/{id}/items/{item_id}/image", authMW(http.HandlerFunc(itemsHandler.UploadImage)))
	mux.Handle("POST /api/scrape", authMW(http.HandlerFunc(scrapeHandler.Scrape)))

	// Visitors, through the wishlist's access token.
	mux.Handle("GET /api/wishlists/public/{token}", optionalAuth(http.HandlerFunc(wishlistsHandler.Public)))
	mux.Handle("POST /api/wishlists/public/{token}/items/{item_id}/reserve", optionalAuth(http.HandlerFunc(itemsHandler.Reserve)))
	mux.Handle("POST /api/wishlists/public/{token}/items/{item_id}/unreserve", optionalAuth(http.HandlerFunc(itemsHandler.Unreserve)))
	mux.Handle("POST /api/wishlists/public/{token}/items/{item_id}/contribute", optionalAuth(http.HandlerFunc(itemsHandler.Contribute)))

	// Live sockets.
	mux.HandleFunc("GET /ws/wishlists/public/{token}", liveHandler.Public)
	mux.HandleFunc("GET /ws/wishlists/{id}", liveHandler.Owner)

	return Recovery(CORS(d.CORSOrigins)(metrics.Middleware(LoggingMiddleware(mux))))
}
