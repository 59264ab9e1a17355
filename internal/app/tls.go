package app

import (
	"crypto/tls"
	"net/http"

	"golang.org/x/crypto/acme/autocert"

	"github.com/gonglijing/nbconsole/internal/config"
	"github.com/gonglijing/nbconsole/internal/logger"
)

// listenAndServe TLS 优先级：1) 自动证书 2) 指定证书 3) HTTP
func listenAndServe(server *http.Server, cfg *config.Config, log *logger.Logger) error {
	switch {
	case cfg.TLSAuto && cfg.TLSDomain != "":
		m := autocertManager(cfg)
		server.TLSConfig = &tls.Config{
			GetCertificate: m.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}
		go func() {
			if err := http.ListenAndServe(":80", m.HTTPHandler(nil)); err != nil {
				log.Warn("ACME challenge listener stopped", "error", err)
			}
		}()
		log.Info("Starting HTTPS (auto-cert)", "addr", cfg.ListenAddr, "domain", cfg.TLSDomain)
		return server.ListenAndServeTLS("", "")
	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		log.Info("Starting HTTPS", "addr", cfg.ListenAddr, "cert", cfg.TLSCertFile)
		return server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	default:
		log.Info("Starting HTTP", "addr", cfg.ListenAddr)
		return server.ListenAndServe()
	}
}

func autocertManager(cfg *config.Config) *autocert.Manager {
	return &autocert.Manager{
		Cache:      autocert.DirCache(cfg.TLSCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomain),
	}
}
