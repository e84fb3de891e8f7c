package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPort    = "8080"
	DefaultTLSMode = TLSModeAutoCert

	TLSModeAutoCert = "autocert"
	TLSModeManual   = "manual"

	shutdownTimeout = 10 * time.Second
)

type Server struct {
	Port string
	Host string
	TLS  ServerTLS
}

type ServerTLS struct {
	Enabled  bool
	Mode     string
	AutoCert *ServerTLSAutoCert
	CertFile string
	KeyFile  string
}

type ServerTLSAutoCert struct {
	CacheDir string
	Domains  []string
	Email    string
}

// Run serves handler until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              net.JoinHostPort(s.Host, s.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	servers := []*http.Server{srv}

	var serve func() error

	switch {
	case !s.TLS.Enabled:
		slog.InfoContext(ctx, "starting http server", "address", srv.Addr)

		serve = srv.ListenAndServe
	case s.TLS.Mode == TLSModeManual:
		if s.TLS.CertFile == "" || s.TLS.KeyFile == "" {
			return errors.New("tls cert file and key file are required in manual mode")
		}

		slog.InfoContext(ctx, "starting https server", "address", srv.Addr)

		serve = func() error {
			return srv.ListenAndServeTLS(s.TLS.CertFile, s.TLS.KeyFile)
		}
	case s.TLS.Mode == TLSModeAutoCert:
		if s.TLS.AutoCert == nil || len(s.TLS.AutoCert.Domains) == 0 {
			return errors.New("at least one domain is required in autocert mode")
		}

		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(s.TLS.AutoCert.CacheDir),
			HostPolicy: autocert.HostWhitelist(s.TLS.AutoCert.Domains...),
			Email:      s.TLS.AutoCert.Email,
		}

		srv.Addr = net.JoinHostPort(s.Host, "443")
		srv.TLSConfig = manager.TLSConfig()

		// answers ACME http-01 challenges and redirects everything else
		challengeSrv := &http.Server{
			Addr:              net.JoinHostPort(s.Host, "80"),
			Handler:           manager.HTTPHandler(nil),
			ReadHeaderTimeout: 5 * time.Second,
		}

		servers = append(servers, challengeSrv)

		slog.InfoContext(ctx, "starting https server", "address", domainsToHTTPSAddress(s.TLS.AutoCert.Domains))

		serve = func() error {
			go func() {
				err := challengeSrv.ListenAndServe()
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.ErrorContext(ctx, "failed to serve acme challenges", "error", err)
				}
			}()

			return srv.ListenAndServeTLS("", "")
		}
	default:
		return fmt.Errorf("unsupported tls mode %q", s.TLS.Mode)
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := serve()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()

		slog.InfoContext(ctx, "shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error

		for _, server := range servers {
			err := server.Shutdown(shutdownCtx)
			if err != nil {
				errs = append(errs, err)
			}
		}

		if len(errs) > 0 {
			return fmt.Errorf("failed to shutdown server: %w", errors.Join(errs...))
		}

		return nil
	})

	err := g.Wait()
	if err != nil {
		return err //nolint:wrapcheck
	}

	return nil
}

func domainsToHTTPSAddress(domains []string) string {
	addresses := make([]string, 0, len(domains))
	for _, domain := range domains {
		addresses = append(addresses, "https://"+domain)
	}

	return strings.Join(addresses, ", ")
}
