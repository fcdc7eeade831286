// Package transfer uploads the captured pair to the collector. Every failure
// mode (unreachable network, transport error, non-2xx response, timeout) is
// reported as an ordinary error so the state machine can apply its retry
// policy; nothing here blocks past the configured timeouts.
package transfer

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config holds the collector endpoint and its timeouts.
type Config struct {
	UploadURL      string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// Client performs the upload handoff.
type Client struct {
	cfg  Config
	http *http.Client
	log  *slog.Logger
}

// NewClient builds an upload client. The request timeout bounds the whole
// exchange; a request that never gets a response fails exactly like an
// explicit error response.
func NewClient(cfg Config, log *slog.Logger) *Client {
	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
		log: log,
	}
}

// Upload sends the audio artifact as the request body with the color triple in
// the X-Color-Data header. A nil return means the collector accepted the pair
// (2xx); any other outcome is a failure and the caller keeps the artifacts.
func (c *Client) Upload(ctx context.Context, audioPath, colorPath string) error {
	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return fmt.Errorf("read audio artifact: %w", err)
	}
	colorRaw, err := os.ReadFile(colorPath)
	if err != nil {
		return fmt.Errorf("read color artifact: %w", err)
	}
	color := strings.TrimSpace(string(colorRaw))

	// Establish connectivity within a bounded window before committing to the
	// request; an unreachable collector is a failure, not a hang.
	if err := c.preflight(); err != nil {
		return fmt.Errorf("collector unreachable: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL, bytes.NewReader(audio))
	if err != nil {
		return fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	req.Header.Set("X-Color-Data", color)

	c.log.Info("uploading memory", "bytes", len(audio), "color", color)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector rejected upload: %s", resp.Status)
	}
	c.log.Info("upload accepted", "status", resp.Status)
	return nil
}

func (c *Client) preflight() error {
	u, err := url.Parse(c.cfg.UploadURL)
	if err != nil {
		return fmt.Errorf("parse upload url: %w", err)
	}
	host := u.Host
	if u.Port() == "" {
		port := "80"
		if u.Scheme == "https" {
			port = "443"
		}
		host = net.JoinHostPort(u.Hostname(), port)
	}

	conn, err := net.DialTimeout("tcp", host, c.cfg.ConnectTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}
