package parser

import (
	"strconv"
	"strings"

	"asa-mx-migrate/internal/utils"
)

// Fields captured from an ACL line. A field not present in the matched rule
// is absent from the map.
const (
	FieldACLName       = "acl_name"
	FieldLineNumber    = "line_number"
	FieldAction        = "action"
	FieldProtocol      = "protocol"
	FieldProtocolGroup = "protocol_group"

	FieldSrcSubnet = "src_subnet"
	FieldSrcMask   = "src_mask"
	FieldSrcHost   = "src_host"
	FieldSrcAny    = "src_any"
	FieldSrcFQDN   = "src_fqdn"
	FieldSrcObject = "src_obj"
	FieldSrcGroup  = "src_obj_group"

	FieldDstSubnet   = "dst_subnet"
	FieldDstMask     = "dst_mask"
	FieldDstHost     = "dst_host"
	FieldDstAny      = "dst_any"
	FieldDstICMPType = "dst_icmp_type"
	FieldDstFQDN     = "dst_fqdn"
	FieldDstObject   = "dst_obj"
	FieldDstGroup    = "dst_obj_group"

	FieldDstPort      = "dst_port"
	FieldDstPortRange = "dst_port_range"
	FieldDstPortGroup = "dst_port_group"
)

type Fields map[string]string

func (f Fields) Has(name string) bool {
	_, ok := f[name]
	return ok
}

type tokenClass int

const (
	classToken tokenClass = iota // any non-blank token
	classWord                    // letters, digits, underscore
	classPort                    // word characters and '-'
	classIPv4
)

func (c tokenClass) accepts(tok string) bool {
	switch c {
	case classWord:
		return isWord(tok, false)
	case classPort:
		return isWord(tok, true)
	case classIPv4:
		return utils.IsIPv4(tok)
	default:
		return tok != ""
	}
}

// slot consumes one token. With keywords set the token must be one of them;
// with field set the token is captured under that name.
type slot struct {
	keywords []string
	field    string
	class    tokenClass
}

func (s slot) accepts(tok string) bool {
	if len(s.keywords) > 0 {
		for _, kw := range s.keywords {
			if tok == kw {
				return true
			}
		}
		return false
	}
	return s.class.accepts(tok)
}

func keyword(kw string) slot { return slot{keywords: []string{kw}} }
func capture(field string, c tokenClass) slot {
	return slot{field: field, class: c}
}

// GrammarRule is one ordered template of the ACL body after the protocol.
type GrammarRule struct {
	Name  string
	slots []slot
}

func (r GrammarRule) match(tokens []string, into Fields) (int, bool) {
	return matchSlots(r.slots, tokens, into)
}

func matchSlots(slots []slot, tokens []string, into Fields) (int, bool) {
	if len(tokens) < len(slots) {
		return 0, false
	}
	for i, s := range slots {
		if !s.accepts(tokens[i]) {
			return 0, false
		}
	}
	for i, s := range slots {
		if s.field != "" {
			into[s.field] = tokens[i]
		}
	}
	return len(slots), true
}

type specifier struct {
	name  string
	slots []slot
}

var anyKeywords = []string{"any4", "any"}

var icmpTypes = []string{"echo", "echo-reply", "time-exceeded", "unreachable"}

var sourceSpecifiers = []specifier{
	{"subnet", []slot{capture(FieldSrcSubnet, classIPv4), capture(FieldSrcMask, classIPv4)}},
	{"host", []slot{keyword("host"), capture(FieldSrcHost, classIPv4)}},
	{"any", []slot{{keywords: anyKeywords, field: FieldSrcAny}}},
	{"fqdn", []slot{keyword("fqdn"), capture(FieldSrcFQDN, classToken)}},
	{"object", []slot{keyword("object"), capture(FieldSrcObject, classToken)}},
	{"object-group", []slot{keyword("object-group"), capture(FieldSrcGroup, classToken)}},
}

// The ICMP message-type form must be tried before plain any.
var destinationSpecifiers = []specifier{
	{"subnet", []slot{capture(FieldDstSubnet, classIPv4), capture(FieldDstMask, classIPv4)}},
	{"host", []slot{keyword("host"), capture(FieldDstHost, classIPv4)}},
	{"any-icmp", []slot{{keywords: anyKeywords, field: FieldDstAny}, {keywords: icmpTypes, field: FieldDstICMPType}}},
	{"any", []slot{{keywords: anyKeywords, field: FieldDstAny}}},
	{"fqdn", []slot{keyword("fqdn"), capture(FieldDstFQDN, classToken)}},
	{"object", []slot{keyword("object"), capture(FieldDstObject, classToken)}},
	{"object-group", []slot{keyword("object-group"), capture(FieldDstGroup, classToken)}},
}

var portSpecifiers = []specifier{
	{"object-group", []slot{keyword("object-group"), capture(FieldDstPortGroup, classToken)}},
	{"eq", []slot{keyword("eq"), capture(FieldDstPort, classPort)}},
	{"range", []slot{keyword("range"), capture("dst_port_lo", classPort), capture("dst_port_hi", classPort)}},
}

// Grammar is the ordered rule list; the first rule that matches wins.
var Grammar = buildGrammar()

func buildGrammar() []GrammarRule {
	rules := make([]GrammarRule, 0, len(sourceSpecifiers)*len(destinationSpecifiers))
	for _, src := range sourceSpecifiers {
		for _, dst := range destinationSpecifiers {
			slots := append(append([]slot{}, src.slots...), dst.slots...)
			rules = append(rules, GrammarRule{Name: src.name + " " + dst.name, slots: slots})
		}
	}
	return rules
}

// MatchACL matches one "show access-list" line against the grammar. Text
// after the last recognized specifier (log, hit counters, hashes) is ignored.
func MatchACL(line string) (Fields, bool) {
	tokens := strings.Fields(line)
	fields, rest, ok := matchHeader(tokens)
	if !ok {
		return nil, false
	}

	for _, rule := range Grammar {
		captured := Fields{}
		n, ok := rule.match(rest, captured)
		if !ok {
			continue
		}
		for k, v := range captured {
			fields[k] = v
		}
		matchPort(rest[n:], fields)
		return fields, true
	}
	return nil, false
}

// matchHeader consumes "access-list <name> line <n> extended <action> <proto>"
// where the protocol may be "object-group <name>".
func matchHeader(tokens []string) (Fields, []string, bool) {
	if len(tokens) < 2 || tokens[0] != "access-list" {
		return nil, nil, false
	}
	for i := 2; i+3 < len(tokens); i++ {
		if tokens[i] != "line" || !isDigits(tokens[i+1]) || tokens[i+2] != "extended" {
			continue
		}
		fields := Fields{
			FieldACLName:    strings.Join(tokens[1:i], " "),
			FieldLineNumber: tokens[i+1],
		}
		rest := tokens[i+3:]
		if !isWord(rest[0], false) {
			return nil, nil, false
		}
		fields[FieldAction] = rest[0]
		rest = rest[1:]

		switch {
		case len(rest) >= 2 && rest[0] == "object-group":
			fields[FieldProtocolGroup] = rest[1]
			rest = rest[2:]
		case len(rest) >= 1 && isWord(rest[0], false):
			fields[FieldProtocol] = rest[0]
			rest = rest[1:]
		default:
			return nil, nil, false
		}
		return fields, rest, true
	}
	return nil, nil, false
}

func matchPort(tokens []string, into Fields) {
	for _, ps := range portSpecifiers {
		captured := Fields{}
		if _, ok := matchSlots(ps.slots, tokens, captured); !ok {
			continue
		}
		if lo, ok := captured["dst_port_lo"]; ok {
			into[FieldDstPortRange] = lo + " " + captured["dst_port_hi"]
			return
		}
		for k, v := range captured {
			into[k] = v
		}
		return
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 32)
	return err == nil
}

func isWord(s string, allowDash bool) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		case r == '-' && allowDash:
		default:
			return false
		}
	}
	return true
}
