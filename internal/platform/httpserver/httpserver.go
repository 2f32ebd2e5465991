package httpserver

import (
	"net/http"
	"time"
)

// New builds an HTTP server with sane defaults for the CMS surface. Write
// timeout stays generous because authorisation updates may wait on the
// out-of-band SCA channel.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
	}
}
