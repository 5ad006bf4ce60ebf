package gemini

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// ProbeResult reports whether the model endpoint is reachable from this host.
type ProbeResult struct {
	Reachable bool   `json:"reachable"`
	Message   string `json:"message"`
}

// Prober resolves and TLS-dials the API host.
type Prober struct {
	Host     string
	Port     string
	Timeout  time.Duration
	Resolver *net.Resolver
}

// Probe checks DNS resolution then completes a TLS handshake on port 443.
func (p Prober) Probe(ctx context.Context) ProbeResult {
	host := p.Host
	if host == "" {
		host = "generativelanguage.googleapis.com"
	}
	port := p.Port
	if port == "" {
		port = "443"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	resolver := p.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := resolver.LookupHost(ctx, host); err != nil {
		return ProbeResult{Reachable: false, Message: "Cannot resolve AI service domain name"}
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12},
	}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return ProbeResult{Reachable: false, Message: fmt.Sprintf("Cannot connect to AI service: %v", err)}
	}
	_ = conn.Close()
	return ProbeResult{Reachable: true, Message: "AI service is reachable"}
}
