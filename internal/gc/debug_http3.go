package gc

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	http3 "github.com/quic-go/quic-go/http3"
)

// DebugHTTP3Server serves the diagnostic endpoints over HTTP/3, for
// environments that poll runtimes across lossy links where QUIC holds up
// better than TCP.
type DebugHTTP3Server struct {
	srv   *http3.Server
	pc    net.PacketConn
	addr  string
	close func() error
}

// NewDebugHTTP3Server binds the collector's diagnostic mux to addr with
// the given TLS config.
func (c *Collector) NewDebugHTTP3Server(addr string, tlsCfg *tls.Config) *DebugHTTP3Server {
	s := &http3.Server{Addr: addr, TLSConfig: tlsCfg, Handler: c.debugMux()}
	return &DebugHTTP3Server{srv: s, addr: addr}
}

// Start begins serving on a UDP socket, ephemeral if addr ends with ":0".
// It returns the bound address.
func (s *DebugHTTP3Server) Start() (string, error) {
	var err error
	s.pc, err = net.ListenPacket("udp", s.addr)
	if err != nil {
		return "", err
	}
	realAddr := s.pc.LocalAddr().String()
	done := make(chan struct{})
	go func() {
		_ = s.srv.Serve(s.pc)
		close(done)
	}()
	s.close = func() error {
		_ = s.pc.Close()
		select {
		case <-done:
		case <-time.After(time.Second):
		}
		return nil
	}
	return realAddr, nil
}

// Stop stops the server.
func (s *DebugHTTP3Server) Stop() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}

// DebugHTTP3Client returns an http.Client speaking HTTP/3 with the given
// TLS config.
func DebugHTTP3Client(tlsCfg *tls.Config, timeout time.Duration) *http.Client {
	tr := &http3.Transport{TLSClientConfig: tlsCfg}
	return &http.Client{Transport: tr, Timeout: timeout}
}

// CloseDebugHTTP3 closes the client's HTTP/3 round tripper.
func CloseDebugHTTP3(c *http.Client) {
	if tr, ok := c.Transport.(*http3.Transport); ok {
		_ = tr.Close()
	}
}
