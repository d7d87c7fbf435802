package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "pagewatch/pkg/logx"
)

// HTTPConfig configures the HTTP source.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration // per-request; 0 means 15s
}

// HTTP fetches pages from a JSON endpoint:
//
//	GET <url>/pages          -> [{"label": "..."}, ...]
//	GET <url>/pages/<label>  -> {"content": "..."}
type HTTP struct {
	base   string
	client *http.Client
	log    logx.Logger
}

func NewHTTP(cfg HTTPConfig, log logx.Logger) (*HTTP, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("source url is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &HTTP{
		base:   base,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}, nil
}

type pageRef struct {
	Label string `json:"label"`
}

type pageBody struct {
	Content string `json:"content"`
}

func (h *HTTP) List(ctx context.Context) ([]string, error) {
	var refs []pageRef
	if err := h.getJSON(ctx, h.base+"/pages", &refs); err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(refs))
	for _, r := range refs {
		if strings.TrimSpace(r.Label) == "" {
			continue
		}
		labels = append(labels, r.Label)
	}
	return labels, nil
}

func (h *HTTP) Fetch(ctx context.Context, label string) (string, error) {
	var body pageBody
	u := h.base + "/pages/" + url.PathEscape(label)
	if err := h.getJSON(ctx, u, &body); err != nil {
		return "", &FetchError{Label: label, Err: err}
	}
	return body.Content, nil
}

func (h *HTTP) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4*1024)
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
