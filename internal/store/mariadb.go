package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"

	"asa-mx-migrate/internal/model"

	_ "github.com/go-sql-driver/mysql"
)

// MariaDB stages a migration in cfg_* tables instead of pushing it to the
// Dashboard. Rule updates replace the network's rows in one transaction.
type MariaDB struct {
	db *sql.DB
}

func NewMariaDB(dsn string) (*MariaDB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return &MariaDB{db: db}, nil
}

func (s *MariaDB) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cfg_organization (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		name VARCHAR(255) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_network (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		organization_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		UNIQUE KEY uq_network (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_policy_object (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		organization_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(32) NOT NULL,
		object_type VARCHAR(16) NOT NULL,
		cidr VARCHAR(64) NULL,
		fqdn VARCHAR(255) NULL,
		UNIQUE KEY uq_policy_object (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_policy_object_group (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		organization_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(32) NOT NULL,
		object_ids LONGTEXT NOT NULL,
		UNIQUE KEY uq_policy_object_group (organization_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_vlan (
		network_id BIGINT UNSIGNED NOT NULL,
		vlan_id VARCHAR(16) NOT NULL,
		name VARCHAR(255) NOT NULL,
		subnet VARCHAR(64) NOT NULL,
		appliance_ip VARCHAR(64) NOT NULL,
		group_policy_id VARCHAR(32) NULL,
		PRIMARY KEY (network_id, vlan_id)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_static_route (
		id BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
		network_id BIGINT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		subnet VARCHAR(64) NOT NULL,
		gateway_ip VARCHAR(64) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_l3_rule (
		network_id BIGINT UNSIGNED NOT NULL,
		position INT UNSIGNED NOT NULL,
		comment TEXT NOT NULL,
		policy VARCHAR(8) NOT NULL,
		protocol VARCHAR(16) NOT NULL,
		src_port VARCHAR(255) NOT NULL,
		src_cidr TEXT NOT NULL,
		dest_port VARCHAR(255) NOT NULL,
		dest_cidr TEXT NOT NULL,
		PRIMARY KEY (network_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_nat_rule (
		network_id BIGINT UNSIGNED NOT NULL,
		position INT UNSIGNED NOT NULL,
		name VARCHAR(255) NOT NULL,
		lan_ip VARCHAR(64) NOT NULL,
		public_ip VARCHAR(64) NOT NULL,
		uplink VARCHAR(16) NOT NULL,
		allowed_inbound LONGTEXT NOT NULL,
		PRIMARY KEY (network_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS cfg_l7_rule (
		network_id BIGINT UNSIGNED NOT NULL,
		position INT UNSIGNED NOT NULL,
		policy VARCHAR(8) NOT NULL,
		rule_type VARCHAR(16) NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (network_id, position)
	)`,
}

func (s *MariaDB) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// EnsureNetwork registers an organization and network by name so the staging
// inventory can be targeted like a Dashboard account.
func (s *MariaDB) EnsureNetwork(ctx context.Context, orgName, networkName string) error {
	if _, err := s.db.ExecContext(ctx, "INSERT IGNORE INTO cfg_organization (name) VALUES (?)", orgName); err != nil {
		return fmt.Errorf("failed to insert organization: %w", err)
	}
	var orgID int64
	if err := s.db.QueryRowContext(ctx, "SELECT id FROM cfg_organization WHERE name = ?", orgName).Scan(&orgID); err != nil {
		return fmt.Errorf("failed to look up organization: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "INSERT IGNORE INTO cfg_network (organization_id, name) VALUES (?, ?)", orgID, networkName); err != nil {
		return fmt.Errorf("failed to insert network: %w", err)
	}
	return nil
}

func (s *MariaDB) Organizations(ctx context.Context) ([]model.Organization, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM cfg_organization ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orgs []model.Organization
	for rows.Next() {
		var id int64
		var o model.Organization
		if err := rows.Scan(&id, &o.Name); err != nil {
			return nil, err
		}
		o.ID = strconv.FormatInt(id, 10)
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (s *MariaDB) Networks(ctx context.Context, orgID string) ([]model.Network, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM cfg_network WHERE organization_id = ? ORDER BY id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nets []model.Network
	for rows.Next() {
		var id int64
		n := model.Network{OrganizationID: orgID}
		if err := rows.Scan(&id, &n.Name); err != nil {
			return nil, err
		}
		n.ID = strconv.FormatInt(id, 10)
		nets = append(nets, n)
	}
	return nets, rows.Err()
}

func (s *MariaDB) PolicyObjects(ctx context.Context, orgID string) ([]model.PolicyObject, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, category, object_type, cidr, fqdn FROM cfg_policy_object WHERE organization_id = ? ORDER BY id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var objs []model.PolicyObject
	for rows.Next() {
		var id int64
		var objType string
		var cidr, fqdn sql.NullString
		var o model.PolicyObject
		if err := rows.Scan(&id, &o.Name, &o.Category, &objType, &cidr, &fqdn); err != nil {
			return nil, err
		}
		o.ID = strconv.FormatInt(id, 10)
		o.Type = model.ObjectType(objType)
		o.CIDR = cidr.String
		o.FQDN = fqdn.String
		objs = append(objs, o)
	}
	return objs, rows.Err()
}

func (s *MariaDB) CreatePolicyObject(ctx context.Context, orgID string, obj model.PolicyObject) (model.PolicyObject, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO cfg_policy_object (organization_id, name, category, object_type, cidr, fqdn) VALUES (?, ?, ?, ?, ?, ?)",
		orgID, obj.Name, obj.Category, string(obj.Type), nullString(obj.CIDR), nullString(obj.FQDN))
	if err != nil {
		return model.PolicyObject{}, fmt.Errorf("failed to insert policy object %q: %w", obj.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.PolicyObject{}, err
	}
	obj.ID = strconv.FormatInt(id, 10)
	return obj, nil
}

func (s *MariaDB) PolicyObjectGroups(ctx context.Context, orgID string) ([]model.PolicyObjectGroup, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, category, object_ids FROM cfg_policy_object_group WHERE organization_id = ? ORDER BY id", orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []model.PolicyObjectGroup
	for rows.Next() {
		var id int64
		var idsJSON string
		var g model.PolicyObjectGroup
		if err := rows.Scan(&id, &g.Name, &g.Category, &idsJSON); err != nil {
			return nil, err
		}
		g.ID = strconv.FormatInt(id, 10)
		if err := json.Unmarshal([]byte(idsJSON), &g.ObjectIDs); err != nil {
			return nil, fmt.Errorf("group %q: invalid object_ids: %w", g.Name, err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *MariaDB) CreatePolicyObjectGroup(ctx context.Context, orgID string, grp model.PolicyObjectGroup) (model.PolicyObjectGroup, error) {
	ids, err := json.Marshal(grp.ObjectIDs)
	if err != nil {
		return model.PolicyObjectGroup{}, err
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO cfg_policy_object_group (organization_id, name, category, object_ids) VALUES (?, ?, ?, ?)",
		orgID, grp.Name, grp.Category, string(ids))
	if err != nil {
		return model.PolicyObjectGroup{}, fmt.Errorf("failed to insert policy object group %q: %w", grp.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.PolicyObjectGroup{}, err
	}
	grp.ID = strconv.FormatInt(id, 10)
	return grp, nil
}

func (s *MariaDB) VLANs(ctx context.Context, networkID string) ([]model.VLAN, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT vlan_id, name, subnet, appliance_ip, group_policy_id FROM cfg_vlan WHERE network_id = ? ORDER BY vlan_id", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vlans []model.VLAN
	for rows.Next() {
		var v model.VLAN
		var gp sql.NullString
		if err := rows.Scan(&v.ID, &v.Name, &v.Subnet, &v.ApplianceIP, &gp); err != nil {
			return nil, err
		}
		v.GroupPolicyID = gp.String
		vlans = append(vlans, v)
	}
	return vlans, rows.Err()
}

func (s *MariaDB) CreateVLAN(ctx context.Context, networkID string, vlan model.VLAN) (model.VLAN, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cfg_vlan (network_id, vlan_id, name, subnet, appliance_ip, group_policy_id) VALUES (?, ?, ?, ?, ?, ?)",
		networkID, vlan.ID, vlan.Name, vlan.Subnet, vlan.ApplianceIP, nullString(vlan.GroupPolicyID))
	if err != nil {
		return model.VLAN{}, fmt.Errorf("failed to insert vlan %q: %w", vlan.Name, err)
	}
	return vlan, nil
}

func (s *MariaDB) StaticRoutes(ctx context.Context, networkID string) ([]model.StaticRoute, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, subnet, gateway_ip FROM cfg_static_route WHERE network_id = ? ORDER BY id", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var routes []model.StaticRoute
	for rows.Next() {
		var id int64
		var r model.StaticRoute
		if err := rows.Scan(&id, &r.Name, &r.Subnet, &r.GatewayIP); err != nil {
			return nil, err
		}
		r.ID = strconv.FormatInt(id, 10)
		routes = append(routes, r)
	}
	return routes, rows.Err()
}

func (s *MariaDB) CreateStaticRoute(ctx context.Context, networkID string, route model.StaticRoute) (model.StaticRoute, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO cfg_static_route (network_id, name, subnet, gateway_ip) VALUES (?, ?, ?, ?)",
		networkID, route.Name, route.Subnet, route.GatewayIP)
	if err != nil {
		return model.StaticRoute{}, fmt.Errorf("failed to insert static route %q: %w", route.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.StaticRoute{}, err
	}
	route.ID = strconv.FormatInt(id, 10)
	return route, nil
}

// replace deletes the network's rows from table and inserts new ones in a
// single transaction.
func (s *MariaDB) replace(ctx context.Context, table, networkID, insert string, n int, args func(i int) ([]any, error)) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE network_id = ?", networkID); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	for i := 0; i < n; i++ {
		var values []any
		values, err = args(i)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, insert, append([]any{networkID, i}, values...)...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func (s *MariaDB) UpdateL3FirewallRules(ctx context.Context, networkID string, rules []model.L3Rule) error {
	return s.replace(ctx, "cfg_l3_rule", networkID,
		"INSERT INTO cfg_l3_rule (network_id, position, comment, policy, protocol, src_port, src_cidr, dest_port, dest_cidr) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		len(rules), func(i int) ([]any, error) {
			r := rules[i]
			return []any{r.Comment, r.Policy, r.Protocol, r.SrcPort, r.SrcCIDR, r.DestPort, r.DestCIDR}, nil
		})
}

func (s *MariaDB) UpdateOneToOneNatRules(ctx context.Context, networkID string, rules []model.OneToOneNatRule) error {
	return s.replace(ctx, "cfg_nat_rule", networkID,
		"INSERT INTO cfg_nat_rule (network_id, position, name, lan_ip, public_ip, uplink, allowed_inbound) VALUES (?, ?, ?, ?, ?, ?, ?)",
		len(rules), func(i int) ([]any, error) {
			r := rules[i]
			inbound, err := json.Marshal(r.AllowedInbound)
			if err != nil {
				return nil, err
			}
			return []any{r.Name, r.LanIP, r.PublicIP, r.Uplink, string(inbound)}, nil
		})
}

func (s *MariaDB) UpdateL7FirewallRules(ctx context.Context, networkID string, rules []model.L7Rule) error {
	return s.replace(ctx, "cfg_l7_rule", networkID,
		"INSERT INTO cfg_l7_rule (network_id, position, policy, rule_type, value) VALUES (?, ?, ?, ?, ?)",
		len(rules), func(i int) ([]any, error) {
			r := rules[i]
			return []any{r.Policy, r.Type, r.Value}, nil
		})
}

// OneToOneNatRules reads back the staged NAT records in position order.
func (s *MariaDB) OneToOneNatRules(ctx context.Context, networkID string) ([]model.OneToOneNatRule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, lan_ip, public_ip, uplink, allowed_inbound FROM cfg_nat_rule WHERE network_id = ? ORDER BY position", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.OneToOneNatRule
	for rows.Next() {
		var r model.OneToOneNatRule
		var inbound string
		if err := rows.Scan(&r.Name, &r.LanIP, &r.PublicIP, &r.Uplink, &inbound); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(inbound), &r.AllowedInbound); err != nil {
			return nil, fmt.Errorf("nat rule %q: invalid allowed_inbound: %w", r.Name, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// L3FirewallRules reads back the staged outbound rules in position order.
func (s *MariaDB) L3FirewallRules(ctx context.Context, networkID string) ([]model.L3Rule, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT comment, policy, protocol, src_port, src_cidr, dest_port, dest_cidr FROM cfg_l3_rule WHERE network_id = ? ORDER BY position", networkID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []model.L3Rule
	for rows.Next() {
		var r model.L3Rule
		if err := rows.Scan(&r.Comment, &r.Policy, &r.Protocol, &r.SrcPort, &r.SrcCIDR, &r.DestPort, &r.DestCIDR); err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
