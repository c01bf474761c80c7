package inspect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zeu5/skillgraph/ctxlog"
	"github.com/zeu5/skillgraph/metrics"
	"github.com/zeu5/skillgraph/store"
)

// NewRouter builds the gin engine serving the snapshots of s and the metrics of m
func NewRouter(s store.Store, m *metrics.Metrics) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	RegisterRoutes(router.Group("/"), NewHandlers(s, m))
	return router
}

// Serve listens on addr until ctx is done, then shuts the server down
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	logger := ctxlog.FromContext(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Inspection server listening.", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logger.Info("Shutting down inspection server.", "addr", addr)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
