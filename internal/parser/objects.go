package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/utils"
	"asa-mx-migrate/pkg/wellknown"
)

// Object model categories, in build order.
const (
	CategoryObject      = "object"
	CategoryGroup       = "group"
	CategoryService     = "service"
	CategoryProtocol    = "protocol"
	CategoryInterface   = "interface"
	CategoryRoute       = "route"
	CategoryAccessGroup = "access-group"
)

// ObjectCreator submits network objects and groups to the target platform
// and returns them with their assigned IDs.
type ObjectCreator interface {
	CreatePolicyObject(ctx context.Context, obj model.PolicyObject) (model.PolicyObject, error)
	CreatePolicyObjectGroup(ctx context.Context, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error)
}

// RemoteSymbols are the objects and groups that already exist on the target.
type RemoteSymbols struct {
	Objects []model.PolicyObject
	Groups  []model.PolicyObjectGroup
}

type BuildStats struct {
	Built   int
	Skipped int
}

// ObjectModel holds every symbol table the ACL pass resolves against. It is
// read-only once BuildObjectModel returns.
type ObjectModel struct {
	Objects         map[string]model.PolicyObject      // normalized name
	Groups          map[string]model.PolicyObjectGroup // normalized name
	GroupOfGroups   map[string][]string                // name -> member group IDs
	PortGroups      map[string][]string                // name -> "80" or "1000-2000"
	ProtocolGroups  map[string][]string
	Interfaces      map[string]string   // nameif -> cidr
	Routes          map[string][]string // nameif -> cidrs
	NAT             map[string]string   // internal address -> external address
	AnySubstitution map[string][]string // acl name -> cidrs

	Stats map[string]*BuildStats
}

func NewObjectModel() *ObjectModel {
	m := &ObjectModel{
		Objects:         make(map[string]model.PolicyObject),
		Groups:          make(map[string]model.PolicyObjectGroup),
		GroupOfGroups:   make(map[string][]string),
		PortGroups:      make(map[string][]string),
		ProtocolGroups:  make(map[string][]string),
		Interfaces:      make(map[string]string),
		Routes:          make(map[string][]string),
		NAT:             make(map[string]string),
		AnySubstitution: make(map[string][]string),
		Stats:           make(map[string]*BuildStats),
	}
	for _, c := range []string{CategoryObject, CategoryGroup, CategoryService, CategoryProtocol,
		CategoryInterface, CategoryRoute, CategoryAccessGroup} {
		m.Stats[c] = &BuildStats{}
	}
	return m
}

type objectBuilder struct {
	creator ObjectCreator
	classes model.Classification
	m       *ObjectModel
}

// BuildObjectModel scans the configuration tree category by category and
// fills the symbol tables. Network objects and groups are created through the
// creator unless a same-named one already exists. Unsupported constructs are
// left out of the model; only context cancellation is returned as an error.
func BuildObjectModel(ctx context.Context, tree *Tree, remote RemoteSymbols, creator ObjectCreator, classes model.Classification) (*ObjectModel, error) {
	b := &objectBuilder{creator: creator, classes: classes, m: NewObjectModel()}
	for _, obj := range remote.Objects {
		b.m.Objects[obj.Name] = obj
	}
	for _, grp := range remote.Groups {
		b.m.Groups[grp.Name] = grp
	}

	steps := []struct {
		category string
		keywords []string
		build    func(context.Context, *Element) (bool, string)
	}{
		{CategoryObject, []string{"object", "network"}, b.buildObject},
		{CategoryGroup, []string{"object-group", "network"}, b.buildGroup},
		{CategoryService, []string{"object-group", "service"}, b.buildServiceGroup},
		{CategoryProtocol, []string{"object-group", "protocol"}, b.buildProtocolGroup},
		{CategoryInterface, []string{"interface"}, b.buildInterface},
		{CategoryRoute, []string{"route"}, b.buildRoute},
		{CategoryAccessGroup, []string{"access-group"}, b.buildAccessGroup},
	}
	for _, step := range steps {
		elems := tree.FindObjects(step.keywords...)
		stats := b.m.Stats[step.category]
		for _, elem := range elems {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ok, reason := step.build(ctx, elem)
			if ok {
				stats.Built++
				continue
			}
			stats.Skipped++
			slog.Debug("Skipping configuration element", "category", step.category, "line", elem.Text, "reason", reason)
		}
		slog.Info("Object category processed", "category", step.category, "found", len(elems), "built", stats.Built, "skipped", stats.Skipped)
	}
	return b.m, nil
}

func (b *objectBuilder) buildObject(ctx context.Context, elem *Element) (bool, string) {
	fields := elem.Fields()
	if len(fields) < 3 {
		return false, "missing object name"
	}
	name := normalizeName(fields[2])
	if len(elem.Children) == 0 {
		return false, "no object body"
	}

	obj := model.PolicyObject{Name: name, Category: "network"}
	for _, child := range elem.Children {
		c := child.Fields()
		if len(c) == 0 {
			continue
		}
		switch c[0] {
		case "nat":
			b.recordStaticNAT(name, c)
			return false, "nat statement"
		case "host":
			if len(c) < 2 || !utils.IsIPv4(c[1]) {
				return false, "unsupported host address"
			}
			obj.Type = model.CIDRObject
			obj.CIDR = utils.HostCIDR(c[1])
		case "subnet":
			if len(c) < 3 {
				return false, "malformed subnet"
			}
			cidr, ok := utils.MaskedCIDR(c[1], c[2])
			if !ok {
				return false, "unknown subnet mask " + c[2]
			}
			obj.Type = model.CIDRObject
			obj.CIDR = cidr
		case "range":
			return false, "address ranges are not supported"
		case "fqdn":
			if len(c) < 2 {
				return false, "malformed fqdn"
			}
			// fqdn [v4|v6] <name>
			obj.Type = model.FQDNObject
			obj.FQDN = c[len(c)-1]
		}
	}
	if obj.Type == "" {
		return false, "no address statement"
	}
	if _, exists := b.m.Objects[name]; exists {
		return false, "already exists"
	}

	created, err := b.creator.CreatePolicyObject(ctx, obj)
	if err != nil {
		slog.Error("Failed to create policy object", "name", name, "error", err)
		return false, "create failed"
	}
	b.m.Objects[name] = created
	return true, ""
}

// recordStaticNAT handles "nat (in,out) static <mapped>" under an object that
// was defined earlier. The mapped side may be an object or a literal address.
func (b *objectBuilder) recordStaticNAT(name string, c []string) {
	if len(c) < 4 || c[2] != "static" {
		return
	}
	internal, ok := b.m.Objects[name]
	if !ok || internal.Type != model.CIDRObject {
		return
	}
	var external string
	if utils.IsIPv4(c[3]) {
		external = c[3]
	} else {
		mapped, ok := b.m.Objects[normalizeName(c[3])]
		if !ok || mapped.Type != model.CIDRObject {
			return
		}
		external = utils.Address(mapped.CIDR)
	}
	internalIP := utils.Address(internal.CIDR)
	if _, exists := b.m.NAT[internalIP]; !exists {
		b.m.NAT[internalIP] = external
	}
}

func (b *objectBuilder) buildGroup(ctx context.Context, elem *Element) (bool, string) {
	fields := elem.Fields()
	if len(fields) < 3 {
		return false, "missing group name"
	}
	name := normalizeName(fields[2])
	if _, exists := b.m.Groups[name]; exists {
		return false, "already exists"
	}
	if _, exists := b.m.GroupOfGroups[name]; exists {
		return false, "already exists"
	}
	if len(elem.Children) == 0 {
		return false, "no group body"
	}

	grp := model.PolicyObjectGroup{Name: name, Category: "NetworkObjectGroup"}
	var nested []string
	for _, child := range elem.Children {
		c := child.Fields()
		if len(c) == 0 {
			continue
		}
		switch c[0] {
		case "network-object":
			if len(c) < 3 || c[1] != "object" {
				return false, "inline network-object members are not supported"
			}
			obj, ok := b.m.Objects[normalizeName(c[2])]
			if !ok {
				return false, "unknown member object " + c[2]
			}
			grp.ObjectIDs = append(grp.ObjectIDs, obj.ID)
		case "group-object":
			if len(c) < 2 {
				return false, "malformed group-object"
			}
			member, ok := b.m.Groups[normalizeName(c[1])]
			if !ok {
				return false, "unknown member group " + c[1]
			}
			nested = append(nested, member.ID)
		}
	}

	if len(nested) > 0 {
		b.m.GroupOfGroups[name] = nested
		return true, ""
	}
	if len(grp.ObjectIDs) == 0 {
		return false, "no members"
	}
	created, err := b.creator.CreatePolicyObjectGroup(ctx, grp)
	if err != nil {
		slog.Error("Failed to create policy object group", "name", name, "error", err)
		return false, "create failed"
	}
	b.m.Groups[name] = created
	return true, ""
}

func (b *objectBuilder) buildServiceGroup(_ context.Context, elem *Element) (bool, string) {
	fields := elem.Fields()
	// object-group service <name> <proto>
	if len(fields) < 4 {
		return false, "no protocol suffix"
	}
	name := fields[2]
	if _, exists := b.m.PortGroups[name]; exists {
		return false, "already exists"
	}
	if len(elem.Children) == 0 {
		return false, "no group body"
	}

	var ports []string
	for _, child := range elem.Children {
		c := child.Fields()
		if len(c) == 0 || c[0] != "port-object" {
			continue
		}
		if len(c) < 3 {
			return false, "malformed port-object"
		}
		switch c[1] {
		case "eq":
			port, ok := wellknown.Port(c[2])
			if !ok {
				return false, "unknown service " + c[2]
			}
			ports = append(ports, port)
		case "range":
			if len(c) < 4 {
				return false, "malformed port range"
			}
			portRange, ok := portRange(c[2], c[3])
			if !ok {
				return false, "unknown service in range " + c[2] + " " + c[3]
			}
			ports = append(ports, portRange)
		default:
			return false, "unsupported port-object operator " + c[1]
		}
	}
	if len(ports) == 0 {
		return false, "no ports"
	}
	b.m.PortGroups[name] = ports
	return true, ""
}

func (b *objectBuilder) buildProtocolGroup(_ context.Context, elem *Element) (bool, string) {
	fields := elem.Fields()
	if len(fields) < 3 {
		return false, "missing group name"
	}
	name := fields[2]
	if _, exists := b.m.ProtocolGroups[name]; exists {
		return false, "already exists"
	}

	var protocols []string
	for _, child := range elem.Children {
		c := child.Fields()
		if len(c) >= 2 && c[0] == "protocol-object" {
			protocols = append(protocols, c[1])
		}
	}
	if len(protocols) == 0 {
		return false, "no protocols"
	}
	b.m.ProtocolGroups[name] = protocols
	return true, ""
}

func (b *objectBuilder) buildInterface(_ context.Context, elem *Element) (bool, string) {
	var name, cidr string
	for _, child := range elem.Children {
		c := child.Fields()
		switch {
		case len(c) >= 2 && c[0] == "nameif":
			name = c[1]
		case len(c) >= 4 && c[0] == "ip" && c[1] == "address":
			if v, ok := utils.MaskedCIDR(c[2], c[3]); ok {
				cidr = v
			}
		}
	}
	if name == "" || cidr == "" {
		return false, "no nameif or static address"
	}
	b.m.Interfaces[name] = cidr
	return true, ""
}

func (b *objectBuilder) buildRoute(_ context.Context, elem *Element) (bool, string) {
	// route <nameif> <network> <mask> <gateway> [metric]
	fields := elem.Fields()
	if len(fields) < 4 {
		return false, "malformed route"
	}
	cidr, ok := utils.MaskedCIDR(fields[2], fields[3])
	if !ok {
		return false, "unknown route mask " + fields[3]
	}
	b.m.Routes[fields[1]] = append(b.m.Routes[fields[1]], cidr)
	return true, ""
}

func (b *objectBuilder) buildAccessGroup(_ context.Context, elem *Element) (bool, string) {
	// access-group <acl> in interface <nameif>
	fields := elem.Fields()
	if len(fields) < 5 {
		return false, "not bound to an interface"
	}
	name, nameif := fields[1], fields[4]
	if _, exists := b.m.AnySubstitution[name]; exists {
		return false, "already exists"
	}
	ifaceCIDR, ok := b.m.Interfaces[nameif]
	if !ok {
		return false, "unknown interface " + nameif
	}
	if b.classes.IsNAT(name) {
		return false, "nat acl"
	}
	cidrs := []string{ifaceCIDR}
	cidrs = append(cidrs, b.m.Routes[nameif]...)
	b.m.AnySubstitution[name] = cidrs
	return true, ""
}

func portRange(lo, hi string) (string, bool) {
	from, ok := wellknown.Port(lo)
	if !ok {
		return "", false
	}
	to, ok := wellknown.Port(hi)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s-%s", from, to), true
}

func normalizeName(name string) string {
	return strings.ReplaceAll(name, ".", "_")
}
