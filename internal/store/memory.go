// Package store holds the non-Dashboard platforms: an in-memory plan used
// for dry runs and a MariaDB staging inventory.
package store

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/goccy/go-json"

	"asa-mx-migrate/internal/model"
)

// Memory records everything a run would push to the Dashboard.
type Memory struct {
	mu     sync.Mutex
	nextID int

	Orgs     []model.Organization
	Nets     []model.Network
	Objects  map[string][]model.PolicyObject      // org id
	Groups   map[string][]model.PolicyObjectGroup // org id
	VLANList map[string][]model.VLAN              // network id
	RouteMap map[string][]model.StaticRoute       // network id
	L3       map[string][]model.L3Rule
	NAT      map[string][]model.OneToOneNatRule
	L7       map[string][]model.L7Rule
}

func NewMemory() *Memory {
	return &Memory{
		Objects:  make(map[string][]model.PolicyObject),
		Groups:   make(map[string][]model.PolicyObjectGroup),
		VLANList: make(map[string][]model.VLAN),
		RouteMap: make(map[string][]model.StaticRoute),
		L3:       make(map[string][]model.L3Rule),
		NAT:      make(map[string][]model.OneToOneNatRule),
		L7:       make(map[string][]model.L7Rule),
	}
}

// AddNetwork registers an organization and network by name and returns the
// network id.
func (m *Memory) AddNetwork(orgName, networkName string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var orgID string
	for _, o := range m.Orgs {
		if o.Name == orgName {
			orgID = o.ID
		}
	}
	if orgID == "" {
		orgID = m.id("O")
		m.Orgs = append(m.Orgs, model.Organization{ID: orgID, Name: orgName})
	}
	netID := m.id("N")
	m.Nets = append(m.Nets, model.Network{ID: netID, OrganizationID: orgID, Name: networkName})
	return netID
}

func (m *Memory) seq() string {
	m.nextID++
	return strconv.Itoa(m.nextID)
}

func (m *Memory) id(prefix string) string {
	return prefix + "_" + m.seq()
}

func (m *Memory) Organizations(context.Context) ([]model.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Organization(nil), m.Orgs...), nil
}

func (m *Memory) Networks(_ context.Context, orgID string) ([]model.Network, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var nets []model.Network
	for _, n := range m.Nets {
		if n.OrganizationID == orgID {
			nets = append(nets, n)
		}
	}
	return nets, nil
}

func (m *Memory) PolicyObjects(_ context.Context, orgID string) ([]model.PolicyObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PolicyObject(nil), m.Objects[orgID]...), nil
}

func (m *Memory) CreatePolicyObject(_ context.Context, orgID string, obj model.PolicyObject) (model.PolicyObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Objects[orgID] {
		if o.Name == obj.Name {
			return model.PolicyObject{}, fmt.Errorf("policy object %q already exists", obj.Name)
		}
	}
	obj.ID = m.seq()
	m.Objects[orgID] = append(m.Objects[orgID], obj)
	return obj, nil
}

func (m *Memory) PolicyObjectGroups(_ context.Context, orgID string) ([]model.PolicyObjectGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.PolicyObjectGroup(nil), m.Groups[orgID]...), nil
}

func (m *Memory) CreatePolicyObjectGroup(_ context.Context, orgID string, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, g := range m.Groups[orgID] {
		if g.Name == grp.Name {
			return model.PolicyObjectGroup{}, fmt.Errorf("policy object group %q already exists", grp.Name)
		}
	}
	grp.ID = m.seq()
	m.Groups[orgID] = append(m.Groups[orgID], grp)
	return grp, nil
}

func (m *Memory) VLANs(_ context.Context, networkID string) ([]model.VLAN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.VLAN(nil), m.VLANList[networkID]...), nil
}

func (m *Memory) CreateVLAN(_ context.Context, networkID string, vlan model.VLAN) (model.VLAN, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.VLANList[networkID] = append(m.VLANList[networkID], vlan)
	return vlan, nil
}

func (m *Memory) StaticRoutes(_ context.Context, networkID string) ([]model.StaticRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.StaticRoute(nil), m.RouteMap[networkID]...), nil
}

func (m *Memory) CreateStaticRoute(_ context.Context, networkID string, route model.StaticRoute) (model.StaticRoute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	route.ID = m.id("R")
	m.RouteMap[networkID] = append(m.RouteMap[networkID], route)
	return route, nil
}

func (m *Memory) UpdateL3FirewallRules(_ context.Context, networkID string, rules []model.L3Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.L3[networkID] = append([]model.L3Rule(nil), rules...)
	return nil
}

func (m *Memory) UpdateOneToOneNatRules(_ context.Context, networkID string, rules []model.OneToOneNatRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.NAT[networkID] = append([]model.OneToOneNatRule(nil), rules...)
	return nil
}

func (m *Memory) UpdateL7FirewallRules(_ context.Context, networkID string, rules []model.L7Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.L7[networkID] = append([]model.L7Rule(nil), rules...)
	return nil
}

// Plan is the JSON document written by WritePlan.
type Plan struct {
	Organizations []model.Organization                 `json:"organizations"`
	Networks      []model.Network                      `json:"networks"`
	PolicyObjects map[string][]model.PolicyObject      `json:"policyObjects"`
	Groups        map[string][]model.PolicyObjectGroup `json:"policyObjectGroups"`
	VLANs         map[string][]model.VLAN              `json:"vlans"`
	StaticRoutes  map[string][]model.StaticRoute       `json:"staticRoutes"`
	L3Rules       map[string][]model.L3Rule            `json:"l3FirewallRules"`
	NATRules      map[string][]model.OneToOneNatRule   `json:"oneToOneNatRules"`
	L7Rules       map[string][]model.L7Rule            `json:"l7FirewallRules"`
}

// WritePlan dumps everything recorded so far as indented JSON.
func (m *Memory) WritePlan(w io.Writer) error {
	m.mu.Lock()
	plan := Plan{
		Organizations: m.Orgs,
		Networks:      m.Nets,
		PolicyObjects: m.Objects,
		Groups:        m.Groups,
		VLANs:         m.VLANList,
		StaticRoutes:  m.RouteMap,
		L3Rules:       m.L3,
		NATRules:      m.NAT,
		L7Rules:       m.L7,
	}
	b, err := json.MarshalIndent(plan, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}
	if _, err := w.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("failed to write plan: %w", err)
	}
	return nil
}
