// Package dashboard is a minimal Meraki Dashboard API v1 client covering the
// endpoints the migration needs.
package dashboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"asa-mx-migrate/internal/model"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dashboard %s %s: status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

type Options struct {
	APIKey            string
	BaseURL           string
	RequestsPerSecond float64
	Timeout           time.Duration
	HTTPClient        *http.Client
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
		http:    hc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	slog.Debug("Dashboard request", "method", method, "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func (c *Client) Organizations(ctx context.Context) ([]model.Organization, error) {
	var orgs []model.Organization
	err := c.do(ctx, http.MethodGet, "/organizations", nil, &orgs)
	return orgs, err
}

func (c *Client) Networks(ctx context.Context, orgID string) ([]model.Network, error) {
	var nets []model.Network
	err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/networks", nil, &nets)
	return nets, err
}

func (c *Client) PolicyObjects(ctx context.Context, orgID string) ([]model.PolicyObject, error) {
	var objs []model.PolicyObject
	err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/policyObjects", nil, &objs)
	return objs, err
}

func (c *Client) CreatePolicyObject(ctx context.Context, orgID string, obj model.PolicyObject) (model.PolicyObject, error) {
	var created model.PolicyObject
	err := c.do(ctx, http.MethodPost, "/organizations/"+url.PathEscape(orgID)+"/policyObjects", obj, &created)
	return created, err
}

// groupWire tolerates object IDs encoded as numbers or strings.
type groupWire struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Category  string   `json:"category"`
	ObjectIDs []wireID `json:"objectIds"`
}

type wireID string

func (id *wireID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid object id %s", b)
	}
	*id = wireID(strconv.FormatInt(n, 10))
	return nil
}

func (g groupWire) toModel() model.PolicyObjectGroup {
	grp := model.PolicyObjectGroup{ID: g.ID, Name: g.Name, Category: g.Category}
	for _, id := range g.ObjectIDs {
		grp.ObjectIDs = append(grp.ObjectIDs, string(id))
	}
	return grp
}

func (c *Client) PolicyObjectGroups(ctx context.Context, orgID string) ([]model.PolicyObjectGroup, error) {
	var wire []groupWire
	if err := c.do(ctx, http.MethodGet, "/organizations/"+url.PathEscape(orgID)+"/policyObjects/groups", nil, &wire); err != nil {
		return nil, err
	}
	groups := make([]model.PolicyObjectGroup, 0, len(wire))
	for _, g := range wire {
		groups = append(groups, g.toModel())
	}
	return groups, nil
}

func (c *Client) CreatePolicyObjectGroup(ctx context.Context, orgID string, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error) {
	var created groupWire
	if err := c.do(ctx, http.MethodPost, "/organizations/"+url.PathEscape(orgID)+"/policyObjects/groups", grp, &created); err != nil {
		return model.PolicyObjectGroup{}, err
	}
	return created.toModel(), nil
}

func (c *Client) VLANs(ctx context.Context, networkID string) ([]model.VLAN, error) {
	var vlans []model.VLAN
	err := c.do(ctx, http.MethodGet, "/networks/"+url.PathEscape(networkID)+"/appliance/vlans", nil, &vlans)
	return vlans, err
}

func (c *Client) CreateVLAN(ctx context.Context, networkID string, vlan model.VLAN) (model.VLAN, error) {
	var created model.VLAN
	err := c.do(ctx, http.MethodPost, "/networks/"+url.PathEscape(networkID)+"/appliance/vlans", vlan, &created)
	return created, err
}

func (c *Client) StaticRoutes(ctx context.Context, networkID string) ([]model.StaticRoute, error) {
	var routes []model.StaticRoute
	err := c.do(ctx, http.MethodGet, "/networks/"+url.PathEscape(networkID)+"/appliance/staticRoutes", nil, &routes)
	return routes, err
}

func (c *Client) CreateStaticRoute(ctx context.Context, networkID string, route model.StaticRoute) (model.StaticRoute, error) {
	var created model.StaticRoute
	err := c.do(ctx, http.MethodPost, "/networks/"+url.PathEscape(networkID)+"/appliance/staticRoutes", route, &created)
	return created, err
}

type rulesBody[T any] struct {
	Rules []T `json:"rules"`
}

func (c *Client) UpdateL3FirewallRules(ctx context.Context, networkID string, rules []model.L3Rule) error {
	return c.do(ctx, http.MethodPut, "/networks/"+url.PathEscape(networkID)+"/appliance/firewall/l3FirewallRules", rulesBody[model.L3Rule]{Rules: nonNil(rules)}, nil)
}

func (c *Client) UpdateOneToOneNatRules(ctx context.Context, networkID string, rules []model.OneToOneNatRule) error {
	return c.do(ctx, http.MethodPut, "/networks/"+url.PathEscape(networkID)+"/appliance/firewall/oneToOneNatRules", rulesBody[model.OneToOneNatRule]{Rules: nonNil(rules)}, nil)
}

func (c *Client) UpdateL7FirewallRules(ctx context.Context, networkID string, rules []model.L7Rule) error {
	return c.do(ctx, http.MethodPut, "/networks/"+url.PathEscape(networkID)+"/appliance/firewall/l7FirewallRules", rulesBody[model.L7Rule]{Rules: nonNil(rules)}, nil)
}

// nonNil makes an empty rule set encode as [] rather than null.
func nonNil[T any](rules []T) []T {
	if rules == nil {
		return []T{}
	}
	return rules
}
