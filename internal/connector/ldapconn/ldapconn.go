// Package ldapconn implements the connector contract over an LDAP
// directory. Incremental pulls use the directory's update sequence
// numbers: the sync token is the highestCommittedUSN read from the Root
// DSE, and changed entries are found by filtering on uSNChanged.
package ldapconn

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"

	"github.com/go-ldap/ldap/v3"

	"github.com/mreiling/idprov/internal/connector"
)

// Config describes one LDAP resource.
type Config struct {
	Resource     string
	URL          string
	BindDN       string
	BindPassword string
	BaseDN       string

	// KeyAttr is the naming attribute entries are keyed by, e.g. "uid".
	KeyAttr  string
	PageSize uint32
}

// Conn is an LDAP-backed connector. Not safe for concurrent use: the
// underlying LDAP connection serializes requests, so callers wanting
// parallelism open one Conn per worker.
type Conn struct {
	cfg  Config
	conn *ldap.Conn
}

// Dial connects and binds. The caller owns the returned Conn and must
// Close it.
func Dial(cfg Config) (*Conn, error) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 500
	}
	if cfg.KeyAttr == "" {
		cfg.KeyAttr = "uid"
	}
	conn, err := ldap.DialURL(cfg.URL)
	if err != nil {
		return nil, connector.Transient(cfg.Resource, "dial", err)
	}
	if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
		conn.Close()
		return nil, connector.Permanent(cfg.Resource, "bind", err)
	}
	return &Conn{cfg: cfg, conn: conn}, nil
}

// Close releases the LDAP connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) dn(key string) string {
	return fmt.Sprintf("%s=%s,%s", c.cfg.KeyAttr, ldap.EscapeDN(key), c.cfg.BaseDN)
}

// classify maps go-ldap errors onto the connector error taxonomy.
func (c *Conn) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if ldap.IsErrorAnyOf(err,
		ldap.ErrorNetwork,
		ldap.LDAPResultBusy,
		ldap.LDAPResultUnavailable,
		ldap.LDAPResultTimeLimitExceeded,
	) {
		return connector.Transient(c.cfg.Resource, op, err)
	}
	if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
		return connector.ErrNotFound
	}
	return connector.Permanent(c.cfg.Resource, op, err)
}

// Create adds an entry under the base DN.
func (c *Conn) Create(ctx context.Context, class, key string, attrs []connector.Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req := ldap.NewAddRequest(c.dn(key), nil)
	req.Attribute("objectClass", []string{class})
	req.Attribute(c.cfg.KeyAttr, []string{key})
	for _, a := range attrs {
		if a.Name == c.cfg.KeyAttr {
			continue
		}
		req.Attribute(a.Name, a.Values)
	}
	if err := c.conn.Add(req); err != nil {
		return "", c.classify("create", err)
	}
	return key, nil
}

// Update replaces the given attributes on an entry.
func (c *Conn) Update(ctx context.Context, class, key string, attrs []connector.Attr) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req := ldap.NewModifyRequest(c.dn(key), nil)
	for _, a := range attrs {
		if a.Name == c.cfg.KeyAttr {
			continue
		}
		req.Replace(a.Name, a.Values)
	}
	if err := c.conn.Modify(req); err != nil {
		return "", c.classify("update", err)
	}
	return key, nil
}

// Delete removes an entry.
func (c *Conn) Delete(ctx context.Context, class, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.conn.Del(ldap.NewDelRequest(c.dn(key), nil)); err != nil {
		return c.classify("delete", err)
	}
	return nil
}

// Get reads one entry by key, nil when absent.
func (c *Conn) Get(ctx context.Context, class, key string) (*connector.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := ldap.NewSearchRequest(
		c.dn(key),
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(class)),
		nil,
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, nil
		}
		return nil, c.classify("get", err)
	}
	if len(res.Entries) == 0 {
		return nil, nil
	}
	rec := entryToRecord(class, c.cfg.KeyAttr, res.Entries[0])
	return &rec, nil
}

// Search pages through entries of the object class, optionally narrowed
// by the filter. The cookie round-trips the server's paging cookie in
// base64.
func (c *Conn) Search(ctx context.Context, class string, filter connector.Filter, cookie string) (connector.Page, error) {
	if err := ctx.Err(); err != nil {
		return connector.Page{}, err
	}

	paging := ldap.NewControlPaging(c.cfg.PageSize)
	if cookie != "" {
		raw, err := base64.StdEncoding.DecodeString(cookie)
		if err != nil {
			return connector.Page{}, connector.Permanent(c.cfg.Resource, "search", fmt.Errorf("bad page cookie: %w", err))
		}
		paging.SetCookie(raw)
	}

	ldapFilter := fmt.Sprintf("(objectClass=%s)", ldap.EscapeFilter(class))
	if filter.Attr != "" {
		ldapFilter = fmt.Sprintf("(&%s(%s=%s))",
			ldapFilter, ldap.EscapeFilter(filter.Attr), ldap.EscapeFilter(filter.Value))
	}

	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		ldapFilter,
		nil,
		[]ldap.Control{paging},
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return connector.Page{}, c.classify("search", err)
	}

	page := connector.Page{}
	for _, entry := range res.Entries {
		page.Records = append(page.Records, entryToRecord(class, c.cfg.KeyAttr, entry))
	}
	if ctrl, ok := ldap.FindControl(res.Controls, ldap.ControlTypePaging).(*ldap.ControlPaging); ok && len(ctrl.Cookie) > 0 {
		page.Cookie = base64.StdEncoding.EncodeToString(ctrl.Cookie)
	}
	return page, nil
}

// Changes returns entries whose uSNChanged exceeds the token, plus the
// directory's current highestCommittedUSN as the next token.
func (c *Conn) Changes(ctx context.Context, class, token string) ([]connector.Record, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	var since int64
	if token != "" {
		n, err := strconv.ParseInt(token, 10, 64)
		if err != nil {
			return nil, "", connector.Permanent(c.cfg.Resource, "changes", fmt.Errorf("bad sync token %q: %w", token, err))
		}
		since = n
	}

	next, err := c.LatestToken(ctx, class)
	if err != nil {
		return nil, "", err
	}

	filter := fmt.Sprintf("(&(objectClass=%s)(uSNChanged>=%d))", ldap.EscapeFilter(class), since+1)
	req := ldap.NewSearchRequest(
		c.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		nil,
		nil,
	)
	res, err := c.conn.SearchWithPaging(req, c.cfg.PageSize)
	if err != nil {
		return nil, "", c.classify("changes", err)
	}

	var recs []connector.Record
	for _, entry := range res.Entries {
		recs = append(recs, entryToRecord(class, c.cfg.KeyAttr, entry))
	}
	return recs, next, nil
}

// LatestToken reads highestCommittedUSN from the Root DSE.
func (c *Conn) LatestToken(ctx context.Context, class string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req := ldap.NewSearchRequest(
		"", // Root DSE
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=*)",
		[]string{"highestCommittedUSN"},
		nil,
	)
	res, err := c.conn.Search(req)
	if err != nil {
		return "", c.classify("root dse", err)
	}
	if len(res.Entries) == 0 {
		return "", connector.Permanent(c.cfg.Resource, "root dse", fmt.Errorf("highestCommittedUSN not found"))
	}
	return res.Entries[0].GetAttributeValue("highestCommittedUSN"), nil
}

// Test verifies the bind is still alive.
func (c *Conn) Test(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.conn.WhoAmI(nil); err != nil {
		return c.classify("whoami", err)
	}
	return nil
}

func entryToRecord(class, keyAttr string, entry *ldap.Entry) connector.Record {
	rec := connector.Record{Class: class, Key: entry.GetAttributeValue(keyAttr)}
	if rec.Key == "" {
		rec.Key = entry.DN
	}
	for _, attr := range entry.Attributes {
		rec.Attrs = append(rec.Attrs, connector.Attr{
			Name:   attr.Name,
			Values: append([]string(nil), attr.Values...),
		})
	}
	return rec
}
