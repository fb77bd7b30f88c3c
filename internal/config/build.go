package config

import (
	"fmt"
	"time"

	"github.com/mreiling/idprov/internal/connector"
	"github.com/mreiling/idprov/internal/mapping"
	"github.com/mreiling/idprov/internal/password"
	"github.com/mreiling/idprov/internal/propagation"
	"github.com/mreiling/idprov/internal/reconcile"
	"github.com/mreiling/idprov/internal/subject"
)

// BuildMapping converts a resource's mapping section into the form the
// resolver consumes. Item-level validation happens in mapping.Validate;
// this is pure shape conversion.
func (r *ResourceConfig) BuildMapping() *mapping.ResourceMapping {
	m := &mapping.ResourceMapping{
		Resource:                  r.Name,
		ObjectClass:               r.ObjectClass,
		EnforceMandatoryOnDerived: r.Mapping.EnforceMandatoryOnDerived,
	}
	for _, it := range r.Mapping.Items {
		item := mapping.Item{
			IntName:      it.IntName,
			ExtName:      it.ExtName,
			Kind:         mapping.ItemKind(it.Kind),
			Purpose:      mapping.Purpose(it.Purpose),
			Key:          it.Key,
			Password:     it.Password,
			Mandatory:    it.Mandatory,
			Transformers: it.Transformers,
		}
		if item.Kind == "" {
			item.Kind = mapping.KindPlain
		}
		if item.Purpose == "" {
			item.Purpose = mapping.PurposeBoth
		}
		m.Items = append(m.Items, item)
	}
	return m
}

// BuildResource assembles the propagation view of a resource around an
// already-dialed connector.
func (c *Config) BuildResource(r *ResourceConfig, conn connector.Connector) (*propagation.Resource, error) {
	res := &propagation.Resource{
		Name:                   r.Name,
		ObjectClass:            r.ObjectClass,
		Mapping:                r.BuildMapping(),
		Connector:              conn,
		Primary:                r.Primary,
		Priority:               r.Priority,
		Mode:                   propagation.Mode(r.Mode),
		RandomPwdIfNotProvided: r.RandomPwdIfNotProvided,
		PasswordPolicy:         c.BuildPasswordPolicy(),
	}
	if res.Mode == "" {
		res.Mode = propagation.ModeOneWay
	}
	if r.Timeout != "" {
		d, err := time.ParseDuration(r.Timeout)
		if err != nil {
			return nil, fmt.Errorf("resource %s: bad timeout %q: %w", r.Name, r.Timeout, err)
		}
		res.Timeout = d
	}
	return res, nil
}

// BuildPasswordPolicy converts the password section.
func (c *Config) BuildPasswordPolicy() password.Policy {
	return password.Policy{
		Length:        c.PasswordPolicy.Length,
		RequireUpper:  c.PasswordPolicy.RequireUpper,
		RequireLower:  c.PasswordPolicy.RequireLower,
		RequireDigit:  c.PasswordPolicy.RequireDigit,
		RequireSymbol: c.PasswordPolicy.RequireSymbol,
	}
}

// BuildDerivations converts the derivations section.
func (c *Config) BuildDerivations() mapping.Derivations {
	if len(c.Derivations) == 0 {
		return nil
	}
	out := make(mapping.Derivations, len(c.Derivations))
	for name, tmpl := range c.Derivations {
		out[name] = mapping.Derivation{Template: tmpl}
	}
	return out
}

// BuildTask converts a task spec into an executable reconciliation
// config, filling in the same defaults the schema declares. The result
// still goes through reconcile's own Validate at run time.
func (t *TaskSpec) BuildTask() (reconcile.TaskConfig, error) {
	cfg := reconcile.TaskConfig{
		Name:            t.Name,
		Resource:        t.Resource,
		ObjectClass:     t.ObjectClass,
		Kind:            subject.Kind(t.Kind),
		Mode:            reconcile.Mode(t.Mode),
		Filter:          connector.Filter{Attr: t.FilterAttr, Value: t.FilterValue},
		MatchingRule:    reconcile.MatchingRule(t.MatchingRule),
		UnmatchingRule:  reconcile.UnmatchingRule(t.UnmatchingRule),
		CorrelationRule: t.CorrelationRule,
		PerformCreate:   boolOr(t.PerformCreate, true),
		PerformUpdate:   boolOr(t.PerformUpdate, true),
		PerformDelete:   t.PerformDelete,
		DryRun:          t.DryRun,
	}
	if cfg.Kind == "" {
		cfg.Kind = subject.KindUser
	}
	if cfg.Mode == "" {
		cfg.Mode = reconcile.ModeFull
	}
	if cfg.MatchingRule == "" {
		cfg.MatchingRule = reconcile.MatchUpdate
	}
	if cfg.UnmatchingRule == "" {
		cfg.UnmatchingRule = reconcile.UnmatchProvision
	}
	if len(t.Templates) > 0 {
		cfg.Templates = make(map[subject.Kind]*subject.Partial, len(t.Templates))
		for kind, tpl := range t.Templates {
			k := subject.Kind(kind)
			if !k.Valid() {
				return reconcile.TaskConfig{}, fmt.Errorf("task %s: bad template kind %q", t.Name, kind)
			}
			p := &subject.Partial{Kind: k, Attrs: make(map[string][]string, len(tpl.Attrs))}
			for name, values := range tpl.Attrs {
				p.Attrs[name] = append([]string(nil), values...)
			}
			cfg.Templates[k] = p
		}
	}
	return cfg, nil
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Schedule returns the task's interval, zero when it only runs on demand.
func (t *TaskSpec) Schedule() (time.Duration, error) {
	if t.Interval == "" {
		return 0, nil
	}
	return time.ParseDuration(t.Interval)
}

// VirtualTTL returns the virtual attribute cache lifetime, one minute
// when unset. crossCheck already rejected unparseable values.
func (c *Config) VirtualTTL() time.Duration {
	if c.VirtualCacheTTL == "" {
		return time.Minute
	}
	d, _ := time.ParseDuration(c.VirtualCacheTTL)
	return d
}

// ResourceByName returns the named resource section, nil when absent.
func (c *Config) ResourceByName(name string) *ResourceConfig {
	for i := range c.Resources {
		if c.Resources[i].Name == name {
			return &c.Resources[i]
		}
	}
	return nil
}
