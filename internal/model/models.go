package model

type Action string // "permit", "deny"

const (
	Permit Action = "permit"
	Deny   Action = "deny"
)

const Any = "any"

type ObjectType string // "cidr", "fqdn"

const (
	CIDRObject ObjectType = "cidr"
	FQDNObject ObjectType = "fqdn"
)

type PolicyObject struct {
	ID       string     `json:"id,omitempty"`
	Name     string     `json:"name"`
	Category string     `json:"category"` // "network"
	Type     ObjectType `json:"type"`
	CIDR     string     `json:"cidr,omitempty"`
	FQDN     string     `json:"fqdn,omitempty"`
}

type PolicyObjectGroup struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name"`
	Category  string   `json:"category"` // "NetworkObjectGroup"
	ObjectIDs []string `json:"objectIds"`
}

// Classification holds the configured ACL name sets.
type Classification struct {
	NAT      map[string]bool
	Outbound map[string]bool
}

func NewClassification(natNames, outboundNames []string) Classification {
	c := Classification{
		NAT:      make(map[string]bool, len(natNames)),
		Outbound: make(map[string]bool, len(outboundNames)),
	}
	for _, n := range natNames {
		c.NAT[n] = true
	}
	for _, n := range outboundNames {
		c.Outbound[n] = true
	}
	return c
}

func (c Classification) IsNAT(aclName string) bool      { return c.NAT[aclName] }
func (c Classification) IsOutbound(aclName string) bool { return c.Outbound[aclName] }

// PortGroupSplit is a service object-group rendered as exact ports and ranges.
type PortGroupSplit struct {
	Exact  string // "80,443"
	Ranges string // "1000-2000,3000-3100"
}

// ResolvedEntry is one ACL line with every symbolic reference resolved.
type ResolvedEntry struct {
	ACLName    string
	LineNumber int
	Action     Action
	Protocol   string   // scalar token, empty when Protocols is set
	Protocols  []string // members of a protocol object-group
	Src        []string // single value unless the source is a group-of-groups
	Dst        []string
	DstPort    string // "", "80" or "1000-2000"
	PortGroup  *PortGroupSplit
	Comment    string
	NAT        bool
	SourceLine string
}

type L3Rule struct {
	Comment  string `json:"comment"`
	Policy   string `json:"policy"` // "allow", "deny"
	Protocol string `json:"protocol"`
	SrcPort  string `json:"srcPort"`
	SrcCIDR  string `json:"srcCidr"`
	DestPort string `json:"destPort"`
	DestCIDR string `json:"destCidr"`
}

type InboundRule struct {
	Protocol         string   `json:"protocol"`
	DestinationPorts []string `json:"destinationPorts"`
	AllowedIPs       []string `json:"allowedIps"`
}

type OneToOneNatRule struct {
	Name           string        `json:"name"`
	LanIP          string        `json:"lanIp"`
	PublicIP       string        `json:"publicIp"`
	Uplink         string        `json:"uplink"`
	AllowedInbound []InboundRule `json:"allowedInbound"`
}

type L7Rule struct {
	Policy string `json:"policy"`
	Type   string `json:"type"` // "ipRange"
	Value  string `json:"value"`
}

type VLAN struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Subnet        string `json:"subnet"`
	ApplianceIP   string `json:"applianceIp"`
	GroupPolicyID string `json:"groupPolicyId,omitempty"`
}

type StaticRoute struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Subnet    string `json:"subnet"`
	GatewayIP string `json:"gatewayIp"`
}

type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Network struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
}
