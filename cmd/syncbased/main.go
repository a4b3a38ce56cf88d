// syncbased is the Server Sync Service daemon: it opens a bbolt-backed
// store.Store at --root-dir and exposes it over REST, one process per
// deployment.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yzkee/super-productivity-sub001/internal/obs"
	"github.com/yzkee/super-productivity-sub001/internal/server"
	"github.com/yzkee/super-productivity-sub001/internal/store/boltstore"
	"github.com/yzkee/super-productivity-sub001/internal/wire"
)

var (
	rootDir    string
	listenAddr string
	apiKey     string
	logLevel   string
)

func main() {
	root := &cobra.Command{
		Use:   "syncbased",
		Short: "Server Sync Service daemon",
		RunE:  run,
	}
	root.Flags().StringVar(&rootDir, "root-dir", "/var/lib/syncbased", "root directory for the bbolt store")
	root.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8443", "address to listen on")
	root.Flags().StringVar(&apiKey, "api-key", "", "bearer credential every client request must present (dev convenience only; real credential issuance is out of scope)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "zerolog level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := obs.New(os.Stderr, level)

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return err
	}
	db, err := boltstore.Open(rootDir + "/syncbased.db")
	if err != nil {
		return err
	}
	defer db.Close()

	svc := server.New(db, log)
	auth := bearerAuth(apiKey, log)
	handler := wire.NewHandler(svc, auth, log)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: handler,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", listenAddr).Str("rootDir", rootDir).Msg("syncbased listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}
	return nil
}

// bearerAuth is a minimal AuthFunc comparing the Authorization header
// against a single configured key. Multi-tenant credential issuance is out
// of scope; this exists only so the daemon is runnable standalone rather
// than wide open. Every userId maps to the same single-tenant "default"
// account.
func bearerAuth(key string, log zerolog.Logger) wire.AuthFunc {
	return func(r *http.Request) (string, bool) {
		if key == "" {
			return "default", true
		}
		got := r.Header.Get("Authorization")
		if got != "Bearer "+key {
			log.Warn().Str("remote", r.RemoteAddr).Msg("rejected request: bad bearer credential")
			return "", false
		}
		return "default", true
	}
}
