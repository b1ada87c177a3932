package parser

import (
	"fmt"
	"io"
	"net/netip"
	"strings"

	"github.com/goccy/go-json"

	"asa-mx-migrate/internal/model"
)

// ParseVLANs reads a JSON array of appliance VLAN definitions. Entries
// without a name, an id, or a valid subnet are rejected.
func ParseVLANs(r io.Reader) ([]model.VLAN, error) {
	var vlans []model.VLAN
	if err := json.NewDecoder(r).Decode(&vlans); err != nil {
		return nil, fmt.Errorf("could not decode vlan file: %w", err)
	}
	for i, v := range vlans {
		v.Name = strings.TrimSpace(v.Name)
		if v.Name == "" || v.ID == "" {
			return nil, fmt.Errorf("vlan %d: id and name are required", i)
		}
		if _, err := netip.ParsePrefix(v.Subnet); err != nil {
			return nil, fmt.Errorf("vlan %q: invalid subnet %q: %w", v.Name, v.Subnet, err)
		}
		if _, err := netip.ParseAddr(v.ApplianceIP); err != nil {
			return nil, fmt.Errorf("vlan %q: invalid appliance ip %q: %w", v.Name, v.ApplianceIP, err)
		}
		vlans[i] = v
	}
	return vlans, nil
}

// ParseStaticRoutes reads a JSON array of appliance static routes.
func ParseStaticRoutes(r io.Reader) ([]model.StaticRoute, error) {
	var routes []model.StaticRoute
	if err := json.NewDecoder(r).Decode(&routes); err != nil {
		return nil, fmt.Errorf("could not decode static route file: %w", err)
	}
	for i, rt := range routes {
		rt.Name = strings.TrimSpace(rt.Name)
		if rt.Name == "" {
			return nil, fmt.Errorf("static route %d: name is required", i)
		}
		if _, err := netip.ParsePrefix(rt.Subnet); err != nil {
			return nil, fmt.Errorf("static route %q: invalid subnet %q: %w", rt.Name, rt.Subnet, err)
		}
		if _, err := netip.ParseAddr(rt.GatewayIP); err != nil {
			return nil, fmt.Errorf("static route %q: invalid gateway %q: %w", rt.Name, rt.GatewayIP, err)
		}
		routes[i] = rt
	}
	return routes, nil
}
