// Package client talks to a leasekeeper server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	leasekeeper "go-leasekeeper"
)

// Resource is a resource as reported by the server, including its state at response time.
type Resource struct {
	leasekeeper.Resource
	State string `json:"state"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, hc *http.Client) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    hc,
	}
}

// ---- Wire format ----

type leaseReq struct {
	Name          string `json:"name"`
	ReservedBy    string `json:"reserved_by"`
	ReservedUntil int64  `json:"reserved_until"`
	RequestedBy   string `json:"requested_by,omitempty"`
}

type createReq struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	OtherFields map[string]string `json:"other_fields,omitempty"`
}

type deleteReq struct {
	Name string `json:"name"`
}

// ---- Operations ----

func (c *Client) List(ctx context.Context) ([]Resource, error) {
	var out []Resource
	if err := c.do(ctx, http.MethodGet, "/resource", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, name string) (Resource, error) {
	var out Resource
	if err := c.do(ctx, http.MethodGet, "/resource?name="+url.QueryEscape(name), nil, &out); err != nil {
		return Resource{}, err
	}
	return out, nil
}

// Reserve asks for name on behalf of who until the given Unix time, 0 meaning until cleared.
func (c *Client) Reserve(ctx context.Context, name, who string, until int64) error {
	return c.do(ctx, http.MethodPost, "/resource", leaseReq{
		Name:          name,
		ReservedBy:    who,
		ReservedUntil: until,
	}, nil)
}

func (c *Client) Clear(ctx context.Context, name, who string) error {
	return c.do(ctx, http.MethodPost, "/resource", leaseReq{
		Name:        name,
		RequestedBy: who,
	}, nil)
}

func (c *Client) Create(ctx context.Context, res leasekeeper.Resource) error {
	return c.do(ctx, http.MethodPost, "/resource/new", createReq{
		Name:        res.Name,
		Description: res.Description,
		OtherFields: res.OtherFields,
	}, nil)
}

func (c *Client) Delete(ctx context.Context, name string) error {
	return c.do(ctx, http.MethodDelete, "/resource", deleteReq{Name: name}, nil)
}

// do sends req as JSON when non-nil and decodes a successful JSON answer into resp when non-nil.
func (c *Client) do(ctx context.Context, method, path string, req any, resp any) error {
	var body io.Reader
	if req != nil {
		b, err := json.Marshal(req)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if req != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	rsp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer rsp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(rsp.Body, 1<<20))
	if rsp.StatusCode < 200 || rsp.StatusCode > 299 {
		return &UnexpectedStatusError{
			Method: method,
			Path:   path,
			Code:   rsp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}

	if resp != nil {
		if err := json.Unmarshal(data, resp); err != nil {
			return fmt.Errorf("failed to decode %s %s: %w", method, path, err)
		}
	}
	return nil
}
