package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"asa-mx-migrate/internal/engine"
	"asa-mx-migrate/internal/metrics"
	"asa-mx-migrate/internal/model"
	"asa-mx-migrate/internal/parser"
)

// Platform is the target control plane: the Meraki Dashboard, a staging
// database, or an in-memory dry run.
type Platform interface {
	Organizations(ctx context.Context) ([]model.Organization, error)
	Networks(ctx context.Context, orgID string) ([]model.Network, error)

	PolicyObjects(ctx context.Context, orgID string) ([]model.PolicyObject, error)
	CreatePolicyObject(ctx context.Context, orgID string, obj model.PolicyObject) (model.PolicyObject, error)
	PolicyObjectGroups(ctx context.Context, orgID string) ([]model.PolicyObjectGroup, error)
	CreatePolicyObjectGroup(ctx context.Context, orgID string, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error)

	VLANs(ctx context.Context, networkID string) ([]model.VLAN, error)
	CreateVLAN(ctx context.Context, networkID string, vlan model.VLAN) (model.VLAN, error)
	StaticRoutes(ctx context.Context, networkID string) ([]model.StaticRoute, error)
	CreateStaticRoute(ctx context.Context, networkID string, route model.StaticRoute) (model.StaticRoute, error)

	UpdateL3FirewallRules(ctx context.Context, networkID string, rules []model.L3Rule) error
	UpdateOneToOneNatRules(ctx context.Context, networkID string, rules []model.OneToOneNatRule) error
	UpdateL7FirewallRules(ctx context.Context, networkID string, rules []model.L7Rule) error
}

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrNetworkNotFound      = errors.New("network not found")
)

type Settings struct {
	OrgName        string
	NetworkName    string
	NATSet         []string
	OutboundSet    []string
	AnyTranslation bool
	NATUplink      string
}

// Input carries the files of one run. VLANs and StaticRoutes may be empty.
type Input struct {
	RunningConfig io.Reader
	AccessLists   io.Reader
	VLANs         []model.VLAN
	StaticRoutes  []model.StaticRoute
	Unprocessed   io.Writer
}

type Summary struct {
	OrganizationID string
	NetworkID      string
	Objects        map[string]parser.BuildStats
	ACL            parser.Report
	VLANsCreated   int
	RoutesCreated  int
	OutboundRules  int
	NATRules       int
	DenyRules      int
}

type Migrator struct {
	platform Platform
	settings Settings
	metrics  *metrics.Recorder
}

func New(platform Platform, settings Settings, recorder *metrics.Recorder) *Migrator {
	if recorder == nil {
		recorder = metrics.NewRecorder()
	}
	return &Migrator{platform: platform, settings: settings, metrics: recorder}
}

// orgScope binds object creation to one organization for the builder.
type orgScope struct {
	platform Platform
	orgID    string
	metrics  *metrics.Recorder
}

func (o orgScope) CreatePolicyObject(ctx context.Context, obj model.PolicyObject) (model.PolicyObject, error) {
	created, err := o.platform.CreatePolicyObject(ctx, o.orgID, obj)
	if err != nil {
		o.metrics.RemoteFailure("create_policy_object")
	}
	return created, err
}

func (o orgScope) CreatePolicyObjectGroup(ctx context.Context, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error) {
	created, err := o.platform.CreatePolicyObjectGroup(ctx, o.orgID, grp)
	if err != nil {
		o.metrics.RemoteFailure("create_policy_object_group")
	}
	return created, err
}

type existing struct {
	objects []model.PolicyObject
	groups  []model.PolicyObjectGroup
	vlans   []model.VLAN
	routes  []model.StaticRoute
}

// Run performs one migration. Lookup, listing and read errors abort the run.
// Failed VLAN, route and rule pushes are reported together after every stage
// has run.
func (m *Migrator) Run(ctx context.Context, in Input) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{Objects: make(map[string]parser.BuildStats)}
	classes := model.NewClassification(m.settings.NATSet, m.settings.OutboundSet)

	// --- 1. Resolve organization and network ---
	orgID, netID, err := m.lookup(ctx)
	if err != nil {
		return nil, err
	}
	summary.OrganizationID, summary.NetworkID = orgID, netID
	slog.Info("Target network resolved", "organization", m.settings.OrgName, "organization_id", orgID, "network", m.settings.NetworkName, "network_id", netID)

	// --- 2. List what already exists ---
	have, err := m.listExisting(ctx, orgID, netID)
	if err != nil {
		return nil, err
	}
	slog.Info("Existing inventory loaded", "objects", len(have.objects), "groups", len(have.groups), "vlans", len(have.vlans), "static_routes", len(have.routes))

	// --- 3. Build the object model ---
	tree, err := parser.ParseTree(in.RunningConfig)
	if err != nil {
		return nil, err
	}
	creator := orgScope{platform: m.platform, orgID: orgID, metrics: m.metrics}
	objectModel, err := parser.BuildObjectModel(ctx, tree, parser.RemoteSymbols{Objects: have.objects, Groups: have.groups}, creator, classes)
	if err != nil {
		return nil, fmt.Errorf("failed to build object model: %w", err)
	}
	for category, stats := range objectModel.Stats {
		summary.Objects[category] = *stats
		m.metrics.Objects(category, stats.Built, stats.Skipped)
	}

	var errs []error

	// --- 4. VLANs and static routes ---
	created, vlanErrs := m.createVLANs(ctx, netID, in.VLANs, have.vlans)
	summary.VLANsCreated = created
	errs = append(errs, vlanErrs...)
	created, routeErrs := m.createStaticRoutes(ctx, netID, in.StaticRoutes, have.routes)
	summary.RoutesCreated = created
	errs = append(errs, routeErrs...)

	// --- 5. Translate access lists ---
	unprocessed := in.Unprocessed
	if unprocessed == nil {
		unprocessed = io.Discard
	}
	aclParser := parser.NewACLParser(objectModel, parser.Options{AnyTranslation: m.settings.AnyTranslation, Classes: classes})
	entries, report, err := aclParser.Parse(in.AccessLists, unprocessed)
	if err != nil {
		return nil, err
	}
	summary.ACL = report
	m.recordReport(report)
	slog.Info("Access lists translated", "lines", report.Lines, "entries", report.Entries, "remarks", report.Remarks,
		"inactive", report.Inactive, "unprocessed", report.Unprocessed, "skipped_children", report.SkippedChild)

	// --- 6. Expand into target rules ---
	result := engine.NewExpander(classes, objectModel.NAT, m.settings.NATUplink).Expand(entries)
	summary.OutboundRules, summary.NATRules, summary.DenyRules = len(result.Outbound), len(result.NAT), len(result.Deny)
	m.metrics.Rules("outbound", len(result.Outbound))
	m.metrics.Rules("nat", len(result.NAT))
	m.metrics.Rules("deny", len(result.Deny))

	// --- 7. Push rule sets ---
	if len(m.settings.OutboundSet) > 0 {
		slog.Info("Adding outbound rules", "count", len(result.Outbound), "network", m.settings.NetworkName)
		if err := m.platform.UpdateL3FirewallRules(ctx, netID, result.Outbound); err != nil {
			errs = append(errs, m.remoteError("update_l3_rules", err))
		}
	}
	if len(m.settings.NATSet) > 0 {
		slog.Info("Adding NAT rules", "count", len(result.NAT), "network", m.settings.NetworkName)
		if err := m.platform.UpdateOneToOneNatRules(ctx, netID, result.NAT); err != nil {
			errs = append(errs, m.remoteError("update_nat_rules", err))
		}
		slog.Info("Adding L7 deny rules", "count", len(result.Deny), "network", m.settings.NetworkName)
		if err := m.platform.UpdateL7FirewallRules(ctx, netID, result.Deny); err != nil {
			errs = append(errs, m.remoteError("update_l7_rules", err))
		}
	}

	slog.Info("Migration complete", "duration", time.Since(startTime), "failures", len(errs))
	return summary, errors.Join(errs...)
}

func (m *Migrator) lookup(ctx context.Context) (string, string, error) {
	orgs, err := m.platform.Organizations(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to list organizations: %w", err)
	}
	var orgID string
	for _, o := range orgs {
		if o.Name == m.settings.OrgName {
			orgID = o.ID
			break
		}
	}
	if orgID == "" {
		return "", "", fmt.Errorf("%w: %q", ErrOrganizationNotFound, m.settings.OrgName)
	}

	nets, err := m.platform.Networks(ctx, orgID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list networks: %w", err)
	}
	for _, n := range nets {
		if n.Name == m.settings.NetworkName {
			return orgID, n.ID, nil
		}
	}
	return "", "", fmt.Errorf("%w: %q", ErrNetworkNotFound, m.settings.NetworkName)
}

func (m *Migrator) listExisting(ctx context.Context, orgID, netID string) (*existing, error) {
	var have existing
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		have.objects, err = m.platform.PolicyObjects(gctx, orgID)
		if err != nil {
			err = fmt.Errorf("failed to list policy objects: %w", err)
		}
		return err
	})
	g.Go(func() (err error) {
		have.groups, err = m.platform.PolicyObjectGroups(gctx, orgID)
		if err != nil {
			err = fmt.Errorf("failed to list policy object groups: %w", err)
		}
		return err
	})
	g.Go(func() (err error) {
		have.vlans, err = m.platform.VLANs(gctx, netID)
		if err != nil {
			err = fmt.Errorf("failed to list vlans: %w", err)
		}
		return err
	})
	g.Go(func() (err error) {
		have.routes, err = m.platform.StaticRoutes(gctx, netID)
		if err != nil {
			err = fmt.Errorf("failed to list static routes: %w", err)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &have, nil
}

func (m *Migrator) createVLANs(ctx context.Context, netID string, vlans, have []model.VLAN) (int, []error) {
	known := make(map[string]bool, len(have))
	for _, v := range have {
		known[v.Name] = true
	}
	var (
		created int
		errs    []error
	)
	for _, v := range vlans {
		if known[v.Name] {
			slog.Debug("VLAN already exists", "name", v.Name)
			continue
		}
		if _, err := m.platform.CreateVLAN(ctx, netID, v); err != nil {
			errs = append(errs, m.remoteError("create_vlan", fmt.Errorf("vlan %q: %w", v.Name, err)))
			continue
		}
		known[v.Name] = true
		created++
	}
	if len(vlans) > 0 {
		slog.Info("VLANs processed", "requested", len(vlans), "created", created)
	}
	return created, errs
}

func (m *Migrator) createStaticRoutes(ctx context.Context, netID string, routes, have []model.StaticRoute) (int, []error) {
	known := make(map[string]bool, len(have))
	for _, r := range have {
		known[r.Name] = true
	}
	var (
		created int
		errs    []error
	)
	for _, r := range routes {
		if known[r.Name] {
			slog.Debug("Static route already exists", "name", r.Name)
			continue
		}
		if _, err := m.platform.CreateStaticRoute(ctx, netID, r); err != nil {
			errs = append(errs, m.remoteError("create_static_route", fmt.Errorf("static route %q: %w", r.Name, err)))
			continue
		}
		known[r.Name] = true
		created++
	}
	if len(routes) > 0 {
		slog.Info("Static routes processed", "requested", len(routes), "created", created)
	}
	return created, errs
}

func (m *Migrator) remoteError(operation string, err error) error {
	m.metrics.RemoteFailure(operation)
	slog.Error("Remote operation failed", "operation", operation, "error", err)
	return fmt.Errorf("%s: %w", operation, err)
}

func (m *Migrator) recordReport(r parser.Report) {
	m.metrics.ACLLines(metrics.OutcomeEntry, r.Entries)
	m.metrics.ACLLines(metrics.OutcomeRemark, r.Remarks)
	m.metrics.ACLLines(metrics.OutcomeInactive, r.Inactive)
	m.metrics.ACLLines(metrics.OutcomeUnprocessed, r.Unprocessed)
	m.metrics.ACLLines(metrics.OutcomeSkippedChild, r.SkippedChild)
}
