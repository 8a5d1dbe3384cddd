// Package httpx carries the HTTP/HTTPS serving shared by the public
// endpoint and the monitoring service.
package httpx

import (
	"context"
	"crypto/tls"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/acme/autocert"

	"github.com/frogrtc/frog/pkg/logger"
)

type Server struct {
	http.Server

	opts Options
	log  *logger.Logger
}

type Options struct {
	Https      bool
	HttpsCert  string
	HttpsKey   string
	HttpsChain string
	// AutoDomain switches certificate handling to Let's Encrypt for
	// the given domain when no cert files are set.
	AutoDomain string

	IdleTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Option func(*Options)

func WithHttps(cert, key, chain string) Option {
	return func(o *Options) {
		o.Https, o.HttpsCert, o.HttpsKey, o.HttpsChain = true, cert, key, chain
	}
}

func WithAutoCert(domain string) Option {
	return func(o *Options) { o.Https, o.AutoDomain = true, domain }
}

func NewServer(address string, handler func(*Server) http.Handler, log *logger.Logger, options ...Option) *Server {
	opts := Options{
		IdleTimeout:  120 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	for _, opt := range options {
		opt(&opts)
	}
	server := &Server{
		Server: http.Server{
			Addr:         address,
			IdleTimeout:  opts.IdleTimeout,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		opts: opts,
		log:  log,
	}
	server.Handler = handler(server)

	if opts.Https && opts.AutoDomain != "" && opts.HttpsCert == "" {
		manager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(opts.AutoDomain),
			Cache:      autocert.DirCache("assets/cache"),
		}
		server.TLSConfig = &tls.Config{GetCertificate: manager.GetCertificate}
	}
	return server
}

// Run serves until shutdown; callers run it in a goroutine.
func (s *Server) Run() {
	protocol := "http"
	if s.opts.Https {
		protocol = "https"
	}
	s.log.Info().Msgf("%s server on %s", protocol, s.Addr)

	var err error
	switch {
	case s.opts.Https && s.opts.HttpsChain != "":
		var cert tls.Certificate
		if cert, err = loadChainedCert(s.opts.HttpsCert, s.opts.HttpsKey, s.opts.HttpsChain); err == nil {
			s.TLSConfig = &tls.Config{Certificates: []tls.Certificate{cert}}
			err = s.ListenAndServeTLS("", "")
		}
	case s.opts.Https:
		err = s.ListenAndServeTLS(s.opts.HttpsCert, s.opts.HttpsKey)
	default:
		err = s.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		s.log.Error().Err(err).Msgf("%s server fail", protocol)
	}
}

// loadChainedCert appends the intermediate certificates from chainFile
// to the leaf, so TLS clients that don't have the issuing CA cached can
// still build a path to a root.
func loadChainedCert(certFile, keyFile, chainFile string) (tls.Certificate, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, err
	}
	chain, err := os.ReadFile(chainFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read chain %s: %w", chainFile, err)
	}
	for len(chain) > 0 {
		var block *pem.Block
		block, chain = pem.Decode(chain)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			cert.Certificate = append(cert.Certificate, block.Bytes)
		}
	}
	return cert, nil
}

func (s *Server) Stop(ctx context.Context) error { return s.Shutdown(ctx) }
