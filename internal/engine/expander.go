package engine

import (
	"log/slog"
	"strings"

	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/utils"
)

const DefaultUplink = "internet1"

// Result holds the three target rule streams produced from one ACL pass.
type Result struct {
	Outbound []model.L3Rule
	NAT      []model.OneToOneNatRule
	Deny     []model.L7Rule
	Dropped  int // entries in neither classification set
}

// Expander classifies resolved entries by ACL name and flattens them into
// atomic rules.
type Expander struct {
	Classes model.Classification
	NAT     map[string]string // internal address -> public address
	Uplink  string
}

func NewExpander(classes model.Classification, nat map[string]string, uplink string) *Expander {
	if uplink == "" {
		uplink = DefaultUplink
	}
	return &Expander{Classes: classes, NAT: nat, Uplink: uplink}
}

func (e *Expander) Expand(entries []model.ResolvedEntry) Result {
	var (
		res     Result
		natAcls []model.ResolvedEntry
	)
	for _, entry := range entries {
		switch {
		case e.Classes.IsOutbound(entry.ACLName):
			res.Outbound = append(res.Outbound, ExpandOutbound(entry)...)
		case e.Classes.IsNAT(entry.ACLName):
			natAcls = append(natAcls, entry)
		default:
			res.Dropped++
			slog.Debug("Dropping unclassified entry", "acl", entry.ACLName, "line_number", entry.LineNumber)
		}
	}
	res.NAT, res.Deny = e.expandNAT(natAcls)
	return res
}

// ExpandOutbound returns one L3 rule per combination of protocol, source,
// destination and destination port, in that nesting order.
func ExpandOutbound(entry model.ResolvedEntry) []model.L3Rule {
	var protocols []string
	switch {
	case len(entry.Protocols) > 0:
		protocols = entry.Protocols
	case entry.Protocol == "ip":
		protocols = []string{model.Any}
	default:
		protocols = []string{entry.Protocol}
	}

	var ports []string
	switch {
	case entry.PortGroup != nil:
		if entry.PortGroup.Exact != "" {
			ports = append(ports, entry.PortGroup.Exact)
		}
		if entry.PortGroup.Ranges != "" {
			ports = append(ports, strings.Split(entry.PortGroup.Ranges, ",")...)
		}
	case entry.DstPort != "":
		ports = []string{entry.DstPort}
	default:
		ports = []string{model.Any}
	}

	policy := "allow"
	if entry.Action != model.Permit {
		policy = "deny"
	}

	rules := make([]model.L3Rule, 0, len(protocols)*len(entry.Src)*len(entry.Dst)*len(ports))
	for _, proto := range protocols {
		for _, src := range entry.Src {
			for _, dst := range entry.Dst {
				for _, port := range ports {
					rules = append(rules, model.L3Rule{
						Comment:  entry.Comment,
						Policy:   policy,
						Protocol: proto,
						SrcPort:  model.Any,
						SrcCIDR:  src,
						DestPort: port,
						DestCIDR: dst,
					})
				}
			}
		}
	}
	return rules
}

// expandNAT merges entries sharing a destination address into one 1:1 NAT
// record. Deny entries from any source to an unbounded destination become
// L7 ipRange deny rules.
func (e *Expander) expandNAT(entries []model.ResolvedEntry) ([]model.OneToOneNatRule, []model.L7Rule) {
	var (
		records []model.OneToOneNatRule
		deny    []model.L7Rule
	)
	index := make(map[string]int)
	for _, entry := range entries {
		src, dst := first(entry.Src), first(entry.Dst)
		if entry.Action == model.Deny && src != model.Any && dst == model.Any {
			deny = append(deny, model.L7Rule{Policy: "deny", Type: "ipRange", Value: src})
		}
		if dst == model.Any {
			continue
		}

		lanIP := utils.Address(dst)
		name := strings.ReplaceAll(lanIP, ".", "_")
		i, ok := index[name]
		if !ok {
			publicIP, mapped := e.NAT[lanIP]
			if !mapped {
				slog.Warn("No static NAT mapping for destination", "acl", entry.ACLName, "line_number", entry.LineNumber, "destination", lanIP)
				continue
			}
			records = append(records, model.OneToOneNatRule{
				Name:     name,
				LanIP:    lanIP,
				PublicIP: publicIP,
				Uplink:   e.Uplink,
			})
			i = len(records) - 1
			index[name] = i
		}

		protocol := entry.Protocol
		if protocol == "ip" {
			protocol = model.Any
		}
		ports := []string{model.Any}
		if entry.DstPort != "" {
			ports = []string{entry.DstPort}
		}
		records[i].AllowedInbound = append(records[i].AllowedInbound, model.InboundRule{
			Protocol:         protocol,
			DestinationPorts: ports,
			AllowedIPs:       []string{src},
		})
	}
	return records, deny
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
