package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tanpawarit/smartops-bi/api"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat API over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := NewContainer(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close container")
		}
	}()

	httpCfg, err := c.HTTPConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		httpCfg.Addr = serveAddr
	}
	if httpCfg.Debug || debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	handler := buildHandler(ctx, c, *httpCfg)
	srv := api.NewServer(api.NewRouter(handler, *httpCfg), *httpCfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// buildHandler keeps the server up when the assistant cannot be built, so
// /health can report it and /chat answers 503.
func buildHandler(ctx context.Context, c *Container, cfg api.Config) *api.Handler {
	messages := c.Messages()

	var catalog api.Catalog
	if wh, err := c.Warehouse(); err != nil {
		log.Error().Err(err).Msg("warehouse unavailable")
	} else {
		catalog = wh
	}

	var probe api.ModelProbe
	if p, err := c.Probe(); err != nil {
		log.Warn().Err(err).Msg("model probe unavailable")
	} else {
		probe = p
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := p.Check(checkCtx); err != nil {
			log.Warn().Err(err).Msg("model probe failed at startup")
		}
		cancel()
	}

	var assistant api.Assistant
	if o, err := c.Assistant(); err != nil {
		log.Error().Err(err).Msg("assistant initialization failed, /chat will answer 503")
	} else {
		assistant = o
		log.Info().Msg("assistant ready")
	}

	return api.NewHandler(assistant, catalog, probe, messages.NotReady, cfg)
}
