package dashboard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"

	"asa-mx-migrate/internal/model"
)

type recorded struct {
	method string
	path   string
	auth   string
	body   string
}

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		calls = append(calls, recorded{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(b)})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Options{APIKey: "secret", BaseURL: srv.URL + "/api/v1/", RequestsPerSecond: 100})
	return c, &calls
}

func TestOrganizationsAndNetworks(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/organizations":
			io.WriteString(w, `[{"id":"123","name":"Acme","url":"https://example"}]`)
		case "/api/v1/organizations/123/networks":
			io.WriteString(w, `[{"id":"N_1","organizationId":"123","name":"Branch"}]`)
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	orgs, err := c.Organizations(ctx)
	if err != nil {
		t.Fatalf("Organizations() error = %v", err)
	}
	if diff := cmp.Diff([]model.Organization{{ID: "123", Name: "Acme"}}, orgs); diff != "" {
		t.Errorf("Organizations() mismatch (-want +got):\n%s", diff)
	}
	nets, err := c.Networks(ctx, "123")
	if err != nil {
		t.Fatalf("Networks() error = %v", err)
	}
	if diff := cmp.Diff([]model.Network{{ID: "N_1", OrganizationID: "123", Name: "Branch"}}, nets); diff != "" {
		t.Errorf("Networks() mismatch (-want +got):\n%s", diff)
	}
	for _, call := range *calls {
		if call.auth != "Bearer secret" {
			t.Errorf("%s %s sent Authorization %q", call.method, call.path, call.auth)
		}
	}
}

func TestCreatePolicyObjectAndGroup(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/organizations/123/policyObjects":
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"900","name":"WEB01","category":"network","type":"cidr","cidr":"10.1.0.10/32"}`)
		case "/api/v1/organizations/123/policyObjects/groups":
			if r.Method == http.MethodGet {
				io.WriteString(w, `[{"id":"5","name":"G","category":"NetworkObjectGroup","objectIds":[900,"901"]}]`)
				return
			}
			w.WriteHeader(http.StatusCreated)
			io.WriteString(w, `{"id":"901","name":"WEB_SERVERS","category":"NetworkObjectGroup","objectIds":[900]}`)
		}
	})
	ctx := context.Background()

	obj, err := c.CreatePolicyObject(ctx, "123", model.PolicyObject{Name: "WEB01", Category: "network", Type: model.CIDRObject, CIDR: "10.1.0.10/32"})
	if err != nil {
		t.Fatalf("CreatePolicyObject() error = %v", err)
	}
	if obj.ID != "900" {
		t.Errorf("object id = %q, want 900", obj.ID)
	}
	var sent map[string]any
	if err := json.Unmarshal([]byte((*calls)[0].body), &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if sent["cidr"] != "10.1.0.10/32" || sent["type"] != "cidr" {
		t.Errorf("unexpected request body %v", sent)
	}
	if _, ok := sent["id"]; ok {
		t.Error("empty id should be omitted from the request")
	}

	grp, err := c.CreatePolicyObjectGroup(ctx, "123", model.PolicyObjectGroup{Name: "WEB_SERVERS", Category: "NetworkObjectGroup", ObjectIDs: []string{"900"}})
	if err != nil {
		t.Fatalf("CreatePolicyObjectGroup() error = %v", err)
	}
	if diff := cmp.Diff(model.PolicyObjectGroup{ID: "901", Name: "WEB_SERVERS", Category: "NetworkObjectGroup", ObjectIDs: []string{"900"}}, grp); diff != "" {
		t.Errorf("CreatePolicyObjectGroup() mismatch (-want +got):\n%s", diff)
	}

	groups, err := c.PolicyObjectGroups(ctx, "123")
	if err != nil {
		t.Fatalf("PolicyObjectGroups() error = %v", err)
	}
	if diff := cmp.Diff([]string{"900", "901"}, groups[0].ObjectIDs); diff != "" {
		t.Errorf("group object ids mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateRulesSendsRulesEnvelope(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"rules":[]}`)
	})
	ctx := context.Background()

	rules := []model.L3Rule{{Comment: "web", Policy: "allow", Protocol: "tcp", SrcPort: "any", SrcCIDR: "any", DestPort: "443", DestCIDR: "OBJ(900)"}}
	if err := c.UpdateL3FirewallRules(ctx, "N_1", rules); err != nil {
		t.Fatalf("UpdateL3FirewallRules() error = %v", err)
	}
	if err := c.UpdateL7FirewallRules(ctx, "N_1", nil); err != nil {
		t.Fatalf("UpdateL7FirewallRules() error = %v", err)
	}

	got := *calls
	if got[0].method != http.MethodPut || got[0].path != "/api/v1/networks/N_1/appliance/firewall/l3FirewallRules" {
		t.Errorf("unexpected call %s %s", got[0].method, got[0].path)
	}
	want := `{"rules":[{"comment":"web","policy":"allow","protocol":"tcp","srcPort":"any","srcCidr":"any","destPort":"443","destCidr":"OBJ(900)"}]}`
	if got[0].body != want {
		t.Errorf("body = %s\nwant %s", got[0].body, want)
	}
	if got[1].body != `{"rules":[]}` {
		t.Errorf("empty rule set body = %s", got[1].body)
	}
}

func TestAPIError(t *testing.T) {
	c, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"errors":["Invalid destCidr"]}`)
	})

	err := c.UpdateOneToOneNatRules(context.Background(), "N_1", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Method != http.MethodPut {
		t.Errorf("unexpected api error %+v", apiErr)
	}
}

func TestCancelledContext(t *testing.T) {
	c, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.VLANs(ctx, "N_1"); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
	if len(*calls) != 0 {
		t.Errorf("request was sent despite cancellation")
	}
}
