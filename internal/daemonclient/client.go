// Package daemonclient is the CLI-side counterpart to internal/daemon: an
// HTTP client dialed over the daemon's unix socket, directly grounded on
// the teacher's MuxClient (mux_client.go) — same doRequest-over-unix-socket
// shape, generalized from sandbox operations to container/image/network/
// volume operations.
package daemonclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/evoker-industries/rune/internal/container"
	"github.com/evoker-industries/rune/internal/network"
	"github.com/evoker-industries/rune/internal/volume"
	"github.com/evoker-industries/rune/version"
)

const apiPrefix = "/v1.43"

// Client talks to a daemon listening on SocketPath.
type Client struct {
	SocketPath string
	httpClient *http.Client
}

// New dials lazily: the unix socket is only connected to on the first
// request, matching the teacher's NewClient (which never itself blocks on
// dialing, only on first use).
func New(socketPath string) *Client {
	return &Client{
		SocketPath: socketPath,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var reqBody *strings.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = strings.NewReader(string(b))
	} else {
		reqBody = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, "http://unix"+apiPrefix+path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("%s (HTTP %d)", errResp.Message, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/_ping", nil, nil)
}

func (c *Client) Version(ctx context.Context) (version.Info, error) {
	var v version.Info
	err := c.doRequest(ctx, http.MethodGet, "/version", nil, &v)
	return v, err
}

func (c *Client) ListContainers(ctx context.Context, all bool) ([]container.Config, error) {
	var out []container.Config
	path := "/containers/json"
	if all {
		path += "?all=true"
	}
	err := c.doRequest(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *Client) GetContainer(ctx context.Context, id string) (container.Config, error) {
	var out container.Config
	err := c.doRequest(ctx, http.MethodGet, "/containers/"+id+"/json", nil, &out)
	return out, err
}

func (c *Client) CreateContainer(ctx context.Context, cfg container.Config) (container.Config, error) {
	var out container.Config
	path := "/containers/create"
	if cfg.Name != "" {
		path += "?name=" + cfg.Name
	}
	err := c.doRequest(ctx, http.MethodPost, path, cfg, &out)
	return out, err
}

func (c *Client) StartContainer(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/containers/"+id+"/start", nil, nil)
}

func (c *Client) StopContainer(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/containers/"+id+"/stop", nil, nil)
}

func (c *Client) KillContainer(ctx context.Context, id string) error {
	return c.doRequest(ctx, http.MethodPost, "/containers/"+id+"/kill", nil, nil)
}

func (c *Client) RemoveContainer(ctx context.Context, id string, force bool) error {
	path := "/containers/" + id
	if force {
		path += "?force=true"
	}
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) ListImages(ctx context.Context) ([]map[string]any, error) {
	var out []map[string]any
	err := c.doRequest(ctx, http.MethodGet, "/images/json", nil, &out)
	return out, err
}

func (c *Client) ListNetworks(ctx context.Context) ([]network.Network, error) {
	var out []network.Network
	err := c.doRequest(ctx, http.MethodGet, "/networks", nil, &out)
	return out, err
}

func (c *Client) ListVolumes(ctx context.Context) ([]volume.Volume, error) {
	var out []volume.Volume
	err := c.doRequest(ctx, http.MethodGet, "/volumes", nil, &out)
	return out, err
}

// EnsureDaemon dials the socket and pings; if that fails it calls
// startDaemon (cmd/rune passes one that launches runed detached), then
// polls for the socket to appear — the same pattern as the teacher's EnsureDaemon in
// mux_client.go, generalized off a hardcoded "sand" binary name.
func EnsureDaemon(ctx context.Context, socketPath string, startDaemon func() error) error {
	conn, err := net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	if err == nil {
		conn.Close()
		cl := New(socketPath)
		if pingErr := cl.Ping(ctx); pingErr == nil {
			return nil
		}
	}

	if err := startDaemon(); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	for i := 0; i < 50; i++ {
		time.Sleep(100 * time.Millisecond)
		conn, err := net.DialTimeout("unix", socketPath, 100*time.Millisecond)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("daemon failed to start within timeout")
}
