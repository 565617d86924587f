package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"unhidra/internal/domain"
)

// Client talks to a relay Server. Registry and Mailbox return views that
// implement the domain contracts.
type Client struct {
	Base string
	HTTP *http.Client
}

// NewClient returns a client for the relay at base.
func NewClient(base string) *Client {
	return &Client{Base: strings.TrimRight(base, "/"), HTTP: http.DefaultClient}
}

// Registry returns the PreKeyRegistry view of c.
func (c *Client) Registry() *RegistryClient { return &RegistryClient{c} }

// Mailbox returns the Mailbox view of c.
func (c *Client) Mailbox() *MailboxClient { return &MailboxClient{c} }

// RegistryClient implements domain.PreKeyRegistry over HTTP.
type RegistryClient struct{ c *Client }

func (r *RegistryClient) Publish(ctx context.Context, device domain.DeviceID,
	up domain.PreKeyUpload) (domain.BundleID, error) {

	var out publishResponse
	if err := r.c.do(ctx, http.MethodPost, bundlePath(device), up, &out); err != nil {
		return "", err
	}
	return out.BundleID, nil
}

func (r *RegistryClient) Fetch(ctx context.Context, device domain.DeviceID) (domain.PreKeyBundle, error) {
	var out domain.PreKeyBundle
	if err := r.c.do(ctx, http.MethodGet, bundlePath(device), nil, &out); err != nil {
		return domain.PreKeyBundle{}, err
	}
	return out, nil
}

func (r *RegistryClient) ConsumeOneTimePreKey(ctx context.Context, device domain.DeviceID,
	id domain.OneTimePreKeyID) error {

	return r.c.do(ctx, http.MethodPost, bundlePath(device)+"/consume", consumeRequest{ID: id}, nil)
}

// MailboxClient implements domain.Mailbox over HTTP.
type MailboxClient struct{ c *Client }

func (m *MailboxClient) Send(ctx context.Context, d domain.Delivery) error {
	return m.c.do(ctx, http.MethodPost, messagePath(d.To), d, nil)
}

func (m *MailboxClient) Fetch(ctx context.Context, me domain.DeviceID, limit int) ([]domain.Delivery, error) {
	path := messagePath(me)
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out []domain.Delivery
	if err := m.c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MailboxClient) Ack(ctx context.Context, me domain.DeviceID, count int) error {
	return m.c.do(ctx, http.MethodPost, messagePath(me)+"/ack", ackRequest{Count: count}, nil)
}

func bundlePath(d domain.DeviceID) string  { return "/v1/bundles/" + url.PathEscape(string(d)) }
func messagePath(d domain.DeviceID) string { return "/v1/messages/" + url.PathEscape(string(d)) }

// do sends in as JSON (when not nil) and decodes a 2xx response into out
// (when not nil). Error bodies are mapped back to domain errors.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf := new(bytes.Buffer)
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return err
		}
		body = buf
	}
	req, err := http.NewRequestWithContext(ctx, method, c.Base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return responseError(method, path, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("relay %s %s: decode response: %w", method, path, err)
	}
	return nil
}

func responseError(method, path string, resp *http.Response) error {
	var eb errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Error == "" {
		eb.Error = strings.TrimSpace(string(raw))
	}
	err := fmt.Errorf("relay %s %s: %s: %s", method, path, resp.Status, eb.Error)
	var sentinel error
	switch eb.Code {
	case codeBundleNotFound:
		sentinel = domain.ErrBundleNotFound
	case codePreKeyConsumed:
		sentinel = domain.ErrPreKeyConsumed
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	log.Debugf("Relay error: %v", err)
	return err
}

var (
	_ domain.PreKeyRegistry = (*RegistryClient)(nil)
	_ domain.Mailbox        = (*MailboxClient)(nil)
)
