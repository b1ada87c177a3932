package migrate

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/store"
)

const runningConfig = `interface GigabitEthernet0/0
 nameif outside
 ip address 203.0.113.2 255.255.255.248
interface GigabitEthernet0/1
 nameif inside
 ip address 10.1.0.1 255.255.255.0
object network WEB01
 host 10.1.0.10
object network WEB01_PUBLIC
 host 203.0.113.10
object network WEB01
 nat (inside,outside) static WEB01_PUBLIC
object-group network WEB_SERVERS
 network-object object WEB01
object-group service WEB_PORTS tcp
 port-object eq www
 port-object eq https
access-group outside_in in interface outside
access-group inside_out in interface inside
`

const accessLists = `access-list inside_out line 1 remark Web egress
access-list inside_out line 2 extended permit tcp any object-group WEB_SERVERS object-group WEB_PORTS (hitcnt=1) 0x1
access-list inside_out line 3 extended permit udp any host 8.8.8.8 eq domain (hitcnt=0) 0x2
access-list inside_out line 4 extended deny ip any any (hitcnt=0) 0x3
access-list outside_in line 1 extended permit tcp any host 10.1.0.10 eq https (hitcnt=0) 0x4
access-list outside_in line 2 extended deny ip 192.0.2.0 255.255.255.0 any (hitcnt=0) 0x5
access-list outside_in line 3 extended permit tcp any object WEB01 eq www (hitcnt=0) 0x6
`

func testSettings() Settings {
	return Settings{
		OrgName:     "Acme",
		NetworkName: "Branch",
		NATSet:      []string{"outside_in"},
		OutboundSet: []string{"inside_out"},
	}
}

func testInput(unprocessed *bytes.Buffer) Input {
	return Input{
		RunningConfig: strings.NewReader(runningConfig),
		AccessLists:   strings.NewReader(accessLists),
		VLANs:         []model.VLAN{{ID: "10", Name: "Users", Subnet: "10.10.0.0/24", ApplianceIP: "10.10.0.1"}},
		StaticRoutes:  []model.StaticRoute{{Name: "DC", Subnet: "172.16.0.0/12", GatewayIP: "10.1.0.254"}},
		Unprocessed:   unprocessed,
	}
}

func TestRun(t *testing.T) {
	mem := store.NewMemory()
	netID := mem.AddNetwork("Acme", "Branch")
	var unprocessed bytes.Buffer

	summary, err := New(mem, testSettings(), nil).Run(context.Background(), testInput(&unprocessed))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.NetworkID != netID {
		t.Errorf("network id = %s, want %s", summary.NetworkID, netID)
	}

	orgID := summary.OrganizationID
	if got := len(mem.Objects[orgID]); got != 2 {
		t.Errorf("created %d policy objects, want 2", got)
	}
	if got := len(mem.Groups[orgID]); got != 1 {
		t.Fatalf("created %d groups, want 1", got)
	}
	grpRef := "GRP(" + mem.Groups[orgID][0].ID + ")"

	wantL3 := []model.L3Rule{
		{Comment: "Web egress", Policy: "allow", Protocol: "tcp", SrcPort: "any", SrcCIDR: "any", DestPort: "80,443", DestCIDR: grpRef},
		{Policy: "allow", Protocol: "udp", SrcPort: "any", SrcCIDR: "any", DestPort: "53", DestCIDR: "8.8.8.8/32"},
	}
	if diff := cmp.Diff(wantL3, mem.L3[netID]); diff != "" {
		t.Errorf("L3 rules mismatch (-want +got):\n%s", diff)
	}

	wantNAT := []model.OneToOneNatRule{{
		Name: "10_1_0_10", LanIP: "10.1.0.10", PublicIP: "203.0.113.10", Uplink: "internet1",
		AllowedInbound: []model.InboundRule{{Protocol: "tcp", DestinationPorts: []string{"443"}, AllowedIPs: []string{"any"}}},
	}}
	if diff := cmp.Diff(wantNAT, mem.NAT[netID]); diff != "" {
		t.Errorf("NAT rules mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.L7Rule{{Policy: "deny", Type: "ipRange", Value: "192.0.2.0/24"}}, mem.L7[netID]); diff != "" {
		t.Errorf("L7 rules mismatch (-want +got):\n%s", diff)
	}

	// default deny and the object reference in a NAT acl are left for review
	lines := strings.Split(strings.TrimSpace(unprocessed.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[0], "line 4") || !strings.Contains(lines[1], "object WEB01") {
		t.Errorf("unexpected unprocessed lines:\n%s", unprocessed.String())
	}

	if summary.VLANsCreated != 1 || summary.RoutesCreated != 1 {
		t.Errorf("vlans/routes created = %d/%d, want 1/1", summary.VLANsCreated, summary.RoutesCreated)
	}
	if summary.ACL.Entries != 4 || summary.ACL.Unprocessed != 2 || summary.ACL.Remarks != 1 {
		t.Errorf("unexpected acl report %+v", summary.ACL)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	mem := store.NewMemory()
	netID := mem.AddNetwork("Acme", "Branch")

	for i := 0; i < 2; i++ {
		var unprocessed bytes.Buffer
		if _, err := New(mem, testSettings(), nil).Run(context.Background(), testInput(&unprocessed)); err != nil {
			t.Fatalf("run %d: Run() error = %v", i, err)
		}
	}
	orgs, _ := mem.Organizations(context.Background())
	if got := len(mem.Objects[orgs[0].ID]); got != 2 {
		t.Errorf("objects after two runs = %d, want 2", got)
	}
	if got := len(mem.VLANList[netID]); got != 1 {
		t.Errorf("vlans after two runs = %d, want 1", got)
	}
	if got := len(mem.RouteMap[netID]); got != 1 {
		t.Errorf("routes after two runs = %d, want 1", got)
	}
	if got := len(mem.L3[netID]); got != 2 {
		t.Errorf("l3 rules after two runs = %d, want 2", got)
	}
}

func TestRunLookupFailures(t *testing.T) {
	mem := store.NewMemory()
	mem.AddNetwork("Acme", "Other")

	settings := testSettings()
	settings.OrgName = "Nope"
	if _, err := New(mem, settings, nil).Run(context.Background(), testInput(&bytes.Buffer{})); !errors.Is(err, ErrOrganizationNotFound) {
		t.Errorf("expected ErrOrganizationNotFound, got %v", err)
	}
	if _, err := New(mem, testSettings(), nil).Run(context.Background(), testInput(&bytes.Buffer{})); !errors.Is(err, ErrNetworkNotFound) {
		t.Errorf("expected ErrNetworkNotFound, got %v", err)
	}
}

type failingPlatform struct {
	*store.Memory
}

var errRejected = errors.New("rejected")

func (failingPlatform) UpdateL3FirewallRules(context.Context, string, []model.L3Rule) error {
	return errRejected
}

func (failingPlatform) UpdateOneToOneNatRules(context.Context, string, []model.OneToOneNatRule) error {
	return errRejected
}

func TestRunReportsEveryFailedUpdate(t *testing.T) {
	mem := store.NewMemory()
	netID := mem.AddNetwork("Acme", "Branch")

	_, err := New(failingPlatform{mem}, testSettings(), nil).Run(context.Background(), testInput(&bytes.Buffer{}))
	if !errors.Is(err, errRejected) {
		t.Fatalf("expected joined rejection, got %v", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, "update_l3_rules") || !strings.Contains(msg, "update_nat_rules") {
		t.Errorf("error should name both failed updates: %v", err)
	}
	if len(mem.L7[netID]) != 1 {
		t.Errorf("L7 rules should still be pushed after earlier failures")
	}
}
