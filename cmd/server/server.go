package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"example.com/socialwall/internal/broker"
	"example.com/socialwall/internal/logger"
	"example.com/socialwall/internal/market"
	"example.com/socialwall/internal/media"
	"example.com/socialwall/internal/messaging"
	"example.com/socialwall/internal/middleware"
	"example.com/socialwall/internal/onboarding"
	"example.com/socialwall/internal/storage"
	"example.com/socialwall/internal/store"
	"example.com/socialwall/internal/wall"
	"github.com/gorilla/websocket"
)

var logg = logger.New()

// Deps are the backends a Server is built on.
type Deps struct {
	Store         store.StoreInterface
	Publisher     broker.Publisher
	Hub           *broker.Hub
	Storage       storage.Storage
	JWTSecret     string
	ProfileBucket string
	PhotoBucket   string
}

type Server struct {
	store      store.StoreInterface
	identity   *middleware.Identity
	wall       *wall.Service
	onboarding *onboarding.Service
	market     *market.Service
	messaging  *messaging.Service
	media      *media.Service
	upgrader   websocket.Upgrader
}

func New(d Deps) *Server {
	return &Server{
		store:      d.Store,
		identity:   middleware.NewIdentity(d.JWTSecret),
		wall:       wall.New(d.Store, d.Publisher, d.Hub),
		onboarding: onboarding.New(d.Store),
		market:     market.New(d.Store, d.Storage, d.PhotoBucket),
		messaging:  messaging.New(d.Store),
		media:      media.New(d.Storage, d.ProfileBucket, d.PhotoBucket),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Routes returns the HTTP handler serving every endpoint.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	auth := func(h http.HandlerFunc) http.Handler { return s.identity.Require(h) }

	// Public endpoints
	mux.HandleFunc("GET /healthz", s.healthHandler)
	mux.HandleFunc("POST /session", s.sessionHandler)
	mux.HandleFunc("GET /marketplace/catalog", s.catalogHandler)

	// Endpoints acting as a named user
	mux.Handle("GET /posts", auth(s.listPostsHandler))
	mux.Handle("POST /posts", auth(s.createPostHandler))
	mux.Handle("GET /posts/count", auth(s.postCountHandler))
	mux.Handle("GET /posts/live", auth(s.liveHandler))

	mux.Handle("GET /users/info", auth(s.getInfoHandler))
	mux.Handle("POST /users/info", auth(s.saveInfoHandler))

	mux.Handle("GET /marketplace/items", auth(s.listItemsHandler))
	mux.Handle("POST /marketplace/items", auth(s.createItemHandler))
	mux.Handle("GET /marketplace/items/{id}", auth(s.getItemHandler))
	mux.Handle("POST /marketplace/items/{id}/inquiries", auth(s.inquiryHandler))

	mux.Handle("GET /messages", auth(s.listMessagesHandler))
	mux.Handle("GET /messages/unread", auth(s.unreadHandler))

	mux.Handle("GET /profile/image", auth(s.getProfileImageHandler))
	mux.Handle("PUT /profile/image", auth(s.putProfileImageHandler))
	mux.Handle("GET /photos", auth(s.listPhotosHandler))
	mux.Handle("POST /photos", auth(s.uploadPhotoHandler))

	return mux
}

// Run serves addr until ctx is done, then shuts down gracefully. TLS is used
// when both certFile and keyFile are set.
func (s *Server) Run(ctx context.Context, addr, certFile, keyFile string) error {
	// Live feed handlers hold hijacked connections that Shutdown does not
	// track; cancelling the base context ends them.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second, // prevent slowloris attacks
		// No WriteTimeout: live feed connections are long-lived.
		BaseContext: func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error("server", "Server stopped unexpectedly", err)
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.messaging.Wait()
	if err != nil {
		logg.Error("server", "Error during server shutdown", err)
		return err
	}
	logg.Info("server", "Server stopped gracefully")
	return nil
}
