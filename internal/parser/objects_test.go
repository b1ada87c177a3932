package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"asa-mx-migrate/internal/model"
)

type fakeCreator struct {
	next    int
	objects []model.PolicyObject
	groups  []model.PolicyObjectGroup
	fail    map[string]bool
}

func (f *fakeCreator) CreatePolicyObject(_ context.Context, obj model.PolicyObject) (model.PolicyObject, error) {
	if f.fail[obj.Name] {
		return model.PolicyObject{}, errors.New("rejected")
	}
	f.next++
	obj.ID = fmt.Sprintf("%d", f.next)
	f.objects = append(f.objects, obj)
	return obj, nil
}

func (f *fakeCreator) CreatePolicyObjectGroup(_ context.Context, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error) {
	if f.fail[grp.Name] {
		return model.PolicyObjectGroup{}, errors.New("rejected")
	}
	f.next++
	grp.ID = fmt.Sprintf("%d", f.next)
	f.groups = append(f.groups, grp)
	return grp, nil
}

const objectConfig = `interface GigabitEthernet0/0
 nameif outside
 ip address 203.0.113.2 255.255.255.248
interface GigabitEthernet0/1
 nameif inside
 ip address 10.1.0.1 255.255.255.0
interface GigabitEthernet0/2
 nameif mgmt
 ip address dhcp
object network WEB01
 host 10.1.0.10
object network WEB01_PUBLIC
 host 203.0.113.10
object network LAN.NET
 subnet 10.1.0.0 255.255.255.0
object network BAD_MASK
 subnet 10.9.0.0 255.0.255.0
object network POOL
 range 10.1.0.100 10.1.0.200
object network SITE
 fqdn v4 www.example.com
object network WEB01
 nat (inside,outside) static WEB01_PUBLIC
object network LAN.NET
 nat (inside,outside) dynamic interface
object-group network WEB_SERVERS
 network-object object WEB01
 network-object object LAN.NET
object-group network INLINE
 network-object host 10.1.0.20
object-group network ALL_SERVERS
 group-object WEB_SERVERS
 network-object object SITE
object-group network EMPTY
 description nothing here
object-group service WEB_PORTS tcp
 port-object eq www
 port-object eq https
 port-object range 1000 2000
object-group service ODD_PORTS tcp
 port-object gt 1024
object-group service NO_PROTO
 service-object tcp destination eq 80
object-group protocol TCPUDP
 protocol-object tcp
 protocol-object udp
route inside 10.2.0.0 255.255.0.0 10.1.0.254 1
route inside 10.3.0.0 255.255.0.0 10.1.0.254 1
route outside 0.0.0.0 0.0.0.0 203.0.113.1 1
access-group outside_in in interface outside
access-group inside_out in interface inside
access-group mgmt_in in interface mgmt
access-group nat_acl in interface inside
`

func buildTestModel(t *testing.T, remote RemoteSymbols, creator *fakeCreator) *ObjectModel {
	t.Helper()
	tree, err := ParseTree(strings.NewReader(objectConfig))
	if err != nil {
		t.Fatalf("ParseTree() error = %v", err)
	}
	classes := model.NewClassification([]string{"nat_acl"}, []string{"inside_out"})
	m, err := BuildObjectModel(context.Background(), tree, remote, creator, classes)
	if err != nil {
		t.Fatalf("BuildObjectModel() error = %v", err)
	}
	return m
}

func TestBuildObjectModelObjects(t *testing.T) {
	creator := &fakeCreator{}
	m := buildTestModel(t, RemoteSymbols{}, creator)

	tests := []struct {
		name string
		want model.PolicyObject
	}{
		{"WEB01", model.PolicyObject{ID: "1", Name: "WEB01", Category: "network", Type: model.CIDRObject, CIDR: "10.1.0.10/32"}},
		{"WEB01_PUBLIC", model.PolicyObject{ID: "2", Name: "WEB01_PUBLIC", Category: "network", Type: model.CIDRObject, CIDR: "203.0.113.10/32"}},
		{"LAN_NET", model.PolicyObject{ID: "3", Name: "LAN_NET", Category: "network", Type: model.CIDRObject, CIDR: "10.1.0.0/24"}},
		{"SITE", model.PolicyObject{ID: "4", Name: "SITE", Category: "network", Type: model.FQDNObject, FQDN: "www.example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, m.Objects[tt.name]); diff != "" {
				t.Errorf("object mismatch (-want +got):\n%s", diff)
			}
		})
	}
	for _, name := range []string{"BAD_MASK", "POOL"} {
		if _, ok := m.Objects[name]; ok {
			t.Errorf("object %s should not be built", name)
		}
	}
	if len(creator.objects) != 4 {
		t.Errorf("created %d objects remotely, want 4", len(creator.objects))
	}
	if s := m.Stats[CategoryObject]; s.Built != 4 || s.Skipped != 4 {
		t.Errorf("object stats = %+v, want built 4 skipped 4", *s)
	}
}

func TestBuildObjectModelStaticNAT(t *testing.T) {
	m := buildTestModel(t, RemoteSymbols{}, &fakeCreator{})
	want := map[string]string{"10.1.0.10": "203.0.113.10"}
	if diff := cmp.Diff(want, m.NAT); diff != "" {
		t.Errorf("NAT table mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildObjectModelGroups(t *testing.T) {
	creator := &fakeCreator{}
	m := buildTestModel(t, RemoteSymbols{}, creator)

	web, ok := m.Groups["WEB_SERVERS"]
	if !ok {
		t.Fatal("WEB_SERVERS group not built")
	}
	if diff := cmp.Diff([]string{"1", "3"}, web.ObjectIDs); diff != "" {
		t.Errorf("WEB_SERVERS members mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{web.ID}, m.GroupOfGroups["ALL_SERVERS"]); diff != "" {
		t.Errorf("ALL_SERVERS mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"INLINE", "EMPTY", "ALL_SERVERS"} {
		if _, ok := m.Groups[name]; ok {
			t.Errorf("group %s should not be a remote group", name)
		}
	}
	if len(creator.groups) != 1 {
		t.Errorf("created %d groups remotely, want 1", len(creator.groups))
	}
}

func TestBuildObjectModelServiceAndProtocolGroups(t *testing.T) {
	m := buildTestModel(t, RemoteSymbols{}, &fakeCreator{})

	if diff := cmp.Diff([]string{"80", "443", "1000-2000"}, m.PortGroups["WEB_PORTS"]); diff != "" {
		t.Errorf("WEB_PORTS mismatch (-want +got):\n%s", diff)
	}
	for _, name := range []string{"ODD_PORTS", "NO_PROTO"} {
		if _, ok := m.PortGroups[name]; ok {
			t.Errorf("port group %s should be skipped", name)
		}
	}
	if diff := cmp.Diff([]string{"tcp", "udp"}, m.ProtocolGroups["TCPUDP"]); diff != "" {
		t.Errorf("TCPUDP mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildObjectModelAnySubstitution(t *testing.T) {
	m := buildTestModel(t, RemoteSymbols{}, &fakeCreator{})

	want := map[string][]string{
		"outside_in": {"203.0.113.2/29", "0.0.0.0/32"},
		"inside_out": {"10.1.0.1/24", "10.2.0.0/16", "10.3.0.0/16"},
	}
	if diff := cmp.Diff(want, m.AnySubstitution); diff != "" {
		t.Errorf("any substitution mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"outside": "203.0.113.2/29", "inside": "10.1.0.1/24"}, m.Interfaces); diff != "" {
		t.Errorf("interfaces mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildObjectModelReusesRemoteSymbols(t *testing.T) {
	creator := &fakeCreator{next: 100}
	remote := RemoteSymbols{
		Objects: []model.PolicyObject{{ID: "7", Name: "WEB01", Category: "network", Type: model.CIDRObject, CIDR: "10.1.0.10/32"}},
		Groups:  []model.PolicyObjectGroup{{ID: "9", Name: "WEB_SERVERS", ObjectIDs: []string{"7"}}},
	}
	m := buildTestModel(t, remote, creator)

	if got := m.Objects["WEB01"].ID; got != "7" {
		t.Errorf("WEB01 id = %s, want existing 7", got)
	}
	for _, obj := range creator.objects {
		if obj.Name == "WEB01" {
			t.Error("existing object WEB01 was recreated")
		}
	}
	if len(creator.groups) != 0 {
		t.Errorf("existing group recreated: %+v", creator.groups)
	}
	if diff := cmp.Diff([]string{"9"}, m.GroupOfGroups["ALL_SERVERS"]); diff != "" {
		t.Errorf("ALL_SERVERS mismatch (-want +got):\n%s", diff)
	}
	if got := m.NAT["10.1.0.10"]; got != "203.0.113.10" {
		t.Errorf("NAT for existing object = %q, want 203.0.113.10", got)
	}
}

func TestBuildObjectModelCreateFailureSkipsObject(t *testing.T) {
	creator := &fakeCreator{fail: map[string]bool{"WEB01": true}}
	m := buildTestModel(t, RemoteSymbols{}, creator)

	if _, ok := m.Objects["WEB01"]; ok {
		t.Error("failed object should not be in the model")
	}
	if _, ok := m.Groups["WEB_SERVERS"]; ok {
		t.Error("group referencing a failed object should be skipped")
	}
}

func TestBuildObjectModelCancelled(t *testing.T) {
	tree, _ := ParseTree(strings.NewReader(objectConfig))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := BuildObjectModel(ctx, tree, RemoteSymbols{}, &fakeCreator{}, model.Classification{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
