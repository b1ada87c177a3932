package parser

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/utils"
	"asa-mx-migrate/pkg/wellknown"
)

// Options is fixed for one run.
type Options struct {
	AnyTranslation bool
	Classes        model.Classification
}

// ParserState is carried from line to line during one ACL pass.
type ParserState struct {
	Remark         string
	ExpectChildren bool
}

// AddRemark appends text unless it is already part of the accumulated remark.
func (s *ParserState) AddRemark(text string) {
	if text == "" || strings.Contains(s.Remark, text) {
		return
	}
	if s.Remark == "" {
		s.Remark = text
		return
	}
	s.Remark += " + " + text
}

type LineKind int

const (
	LineEntry LineKind = iota
	LineRemark
	LineInactive
	LineUnprocessed
)

func (k LineKind) String() string {
	switch k {
	case LineEntry:
		return "entry"
	case LineRemark:
		return "remark"
	case LineInactive:
		return "inactive"
	case LineUnprocessed:
		return "unprocessed"
	default:
		return "unknown"
	}
}

// Report summarizes one ACL pass.
type Report struct {
	Lines        int
	Entries      int
	Remarks      int
	Inactive     int
	Unprocessed  int
	SkippedChild int
}

// ACLParser resolves "show access-list" output against an ObjectModel.
type ACLParser struct {
	model *ObjectModel
	opts  Options
	state ParserState
}

func NewACLParser(m *ObjectModel, opts Options) *ACLParser {
	return &ACLParser{model: m, opts: opts}
}

func (p *ACLParser) State() ParserState {
	return p.state
}

// Parse reads the ACL dump line by line. Lines that cannot be translated are
// copied to unprocessed. Indented lines are only offered to the grammar when
// their top-level line failed.
func (p *ACLParser) Parse(reader io.Reader, unprocessed io.Writer) ([]model.ResolvedEntry, Report, error) {
	var (
		entries []model.ResolvedEntry
		report  Report
	)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		report.Lines++

		child := strings.HasPrefix(line, " ")
		if !child && p.state.ExpectChildren {
			p.state.ExpectChildren = false
		}
		if child && !p.state.ExpectChildren {
			report.SkippedChild++
			slog.Debug("Skipping child line", "line", strings.TrimSpace(line))
			continue
		}

		entry, kind := p.ParseLine(line)
		switch kind {
		case LineEntry:
			report.Entries++
			entries = append(entries, *entry)
			slog.Debug("Processed line", "acl", entry.ACLName, "line_number", entry.LineNumber)
		case LineRemark:
			report.Remarks++
		case LineInactive:
			report.Inactive++
		case LineUnprocessed:
			report.Unprocessed++
			p.state.ExpectChildren = true
			slog.Debug("Error processing line", "line", strings.TrimSpace(line))
			if _, err := io.WriteString(unprocessed, strings.TrimRight(line, "\r\n")+"\n"); err != nil {
				return nil, report, fmt.Errorf("failed to write unprocessed rule: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, report, fmt.Errorf("error reading access-list file: %w", err)
	}
	return entries, report, nil
}

// ParseLine screens, matches and resolves a single line.
func (p *ACLParser) ParseLine(line string) (*model.ResolvedEntry, LineKind) {
	tokens := strings.Fields(line)
	for _, tok := range tokens {
		if tok == "inactive" || tok == "(inactive)" {
			return nil, LineInactive
		}
	}
	for i, tok := range tokens {
		if tok == "remark" {
			p.state.AddRemark(strings.Join(tokens[i+1:], " "))
			return nil, LineRemark
		}
	}

	fields, ok := MatchACL(line)
	if !ok {
		return nil, LineUnprocessed
	}
	entry := p.Resolve(fields)
	if entry == nil {
		return nil, LineUnprocessed
	}
	entry.SourceLine = strings.TrimSpace(line)
	return entry, LineEntry
}

// Resolve turns a matched field map into a ResolvedEntry, or nil when the
// line references something unknown or unsupported.
func (p *ACLParser) Resolve(f Fields) *model.ResolvedEntry {
	nat := p.opts.Classes.IsNAT(f[FieldACLName])
	lineNumber, _ := strconv.Atoi(f[FieldLineNumber])
	entry := &model.ResolvedEntry{
		ACLName:    f[FieldACLName],
		LineNumber: lineNumber,
		Action:     model.Action(f[FieldAction]),
		Protocol:   f[FieldProtocol],
		NAT:        nat,
	}

	if group, ok := f[FieldProtocolGroup]; ok {
		if nat {
			return nil
		}
		protocols, ok := p.model.ProtocolGroups[group]
		if !ok {
			return nil
		}
		entry.Protocol = ""
		entry.Protocols = protocols
	}

	src, ok := p.resolveSource(f, nat)
	if !ok {
		return nil
	}
	entry.Src = src

	dst, ok := p.resolveDestination(f, nat)
	if !ok {
		return nil
	}
	entry.Dst = dst

	if !p.resolvePort(f, nat, entry) {
		return nil
	}

	entry.Comment = p.state.Remark
	p.state.Remark = ""

	if !p.opts.AnyTranslation && entry.Protocol == "ip" && isAny(entry.Src) && isAny(entry.Dst) {
		return nil
	}
	return entry
}

func (p *ACLParser) resolveSource(f Fields, nat bool) ([]string, bool) {
	switch {
	case f.Has(FieldSrcHost):
		return []string{utils.HostCIDR(f[FieldSrcHost])}, true
	case f.Has(FieldSrcSubnet):
		cidr, ok := utils.MaskedCIDR(f[FieldSrcSubnet], f[FieldSrcMask])
		return []string{cidr}, ok
	case f.Has(FieldSrcAny):
		if cidrs, ok := p.model.AnySubstitution[f[FieldACLName]]; ok && p.opts.AnyTranslation {
			return []string{strings.Join(cidrs, ",")}, true
		}
		return []string{model.Any}, true
	case f.Has(FieldSrcObject):
		return p.resolveObject(f[FieldSrcObject], nat)
	case f.Has(FieldSrcGroup):
		return p.resolveGroup(f[FieldSrcGroup], nat)
	}
	// fqdn sources have no rendering on the target
	return nil, false
}

func (p *ACLParser) resolveDestination(f Fields, nat bool) ([]string, bool) {
	switch {
	case f.Has(FieldDstHost):
		return []string{utils.HostCIDR(f[FieldDstHost])}, true
	case f.Has(FieldDstSubnet):
		cidr, ok := utils.MaskedCIDR(f[FieldDstSubnet], f[FieldDstMask])
		return []string{cidr}, ok
	case f.Has(FieldDstAny):
		if f.Has(FieldDstICMPType) {
			return nil, false
		}
		return []string{model.Any}, true
	case f.Has(FieldDstFQDN):
		if nat {
			return nil, false
		}
		return []string{f[FieldDstFQDN]}, true
	case f.Has(FieldDstObject):
		return p.resolveObject(f[FieldDstObject], nat)
	case f.Has(FieldDstGroup):
		return p.resolveGroup(f[FieldDstGroup], nat)
	}
	return nil, false
}

func (p *ACLParser) resolveObject(name string, nat bool) ([]string, bool) {
	if nat {
		return nil, false
	}
	obj, ok := p.model.Objects[normalizeName(name)]
	if !ok {
		return nil, false
	}
	return []string{objectRef(obj.ID)}, true
}

func (p *ACLParser) resolveGroup(name string, nat bool) ([]string, bool) {
	if nat {
		return nil, false
	}
	name = normalizeName(name)
	if grp, ok := p.model.Groups[name]; ok {
		return []string{groupRef(grp.ID)}, true
	}
	if ids, ok := p.model.GroupOfGroups[name]; ok {
		refs := make([]string, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, groupRef(id))
		}
		return refs, true
	}
	return nil, false
}

func (p *ACLParser) resolvePort(f Fields, nat bool, entry *model.ResolvedEntry) bool {
	switch {
	case f.Has(FieldDstPortRange):
		lo, hi, _ := strings.Cut(f[FieldDstPortRange], " ")
		r, ok := portRange(lo, hi)
		if !ok {
			return false
		}
		entry.DstPort = r
	case f.Has(FieldDstPort):
		port, ok := wellknown.Port(f[FieldDstPort])
		if !ok {
			return false
		}
		entry.DstPort = port
	case f.Has(FieldDstPortGroup):
		if nat {
			return false
		}
		ports, ok := p.model.PortGroups[f[FieldDstPortGroup]]
		if !ok {
			return false
		}
		var exact, ranges []string
		for _, port := range ports {
			if strings.Contains(port, "-") {
				ranges = append(ranges, port)
			} else {
				exact = append(exact, port)
			}
		}
		entry.PortGroup = &model.PortGroupSplit{
			Exact:  strings.Join(exact, ","),
			Ranges: strings.Join(ranges, ","),
		}
	}
	return true
}

func objectRef(id string) string { return "OBJ(" + id + ")" }
func groupRef(id string) string  { return "GRP(" + id + ")" }

func isAny(values []string) bool {
	return len(values) == 1 && values[0] == model.Any
}
