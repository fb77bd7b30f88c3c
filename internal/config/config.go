// Package config loads the YAML provisioning configuration, checks it
// against an embedded CUE schema, and builds the mapping, propagation,
// and reconciliation objects the rest of the system consumes.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// Config is the decoded configuration file.
type Config struct {
	Store           StoreConfig       `yaml:"store"`
	VirtualCacheTTL string            `yaml:"virtualCacheTTL"`
	Derivations     map[string]string `yaml:"derivations"`
	PasswordPolicy  PasswordConfig    `yaml:"passwordPolicy"`
	Resources       []ResourceConfig  `yaml:"resources"`
	Tasks           []TaskSpec        `yaml:"tasks"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
	// SecretKey, when set, encrypts stored password attributes at rest.
	// Usually supplied as ${IDPROV_SECRET_KEY}.
	SecretKey string `yaml:"secretKey"`
}

type PasswordConfig struct {
	Length        int  `yaml:"length"`
	RequireUpper  bool `yaml:"requireUpper"`
	RequireLower  bool `yaml:"requireLower"`
	RequireDigit  bool `yaml:"requireDigit"`
	RequireSymbol bool `yaml:"requireSymbol"`
}

// ResourceConfig describes one external resource: its connector, its
// propagation behavior, and the attribute mapping.
type ResourceConfig struct {
	Name        string `yaml:"name"`
	ObjectClass string `yaml:"objectClass"`
	Connector   string `yaml:"connector"`
	Primary     bool   `yaml:"primary"`
	Priority    int    `yaml:"priority"`
	Mode        string `yaml:"mode"`
	Timeout     string `yaml:"timeout"`

	RandomPwdIfNotProvided bool `yaml:"randomPwdIfNotProvided"`

	LDAP     *LDAPConfig     `yaml:"ldap"`
	Postgres *PostgresConfig `yaml:"postgres"`

	Mapping MappingConfig `yaml:"mapping"`
}

type LDAPConfig struct {
	URL          string `yaml:"url"`
	BindDN       string `yaml:"bindDN"`
	BindPassword string `yaml:"bindPassword"`
	BaseDN       string `yaml:"baseDN"`
	KeyAttr      string `yaml:"keyAttr"`
	PageSize     int    `yaml:"pageSize"`
}

type PostgresConfig struct {
	DSN            string   `yaml:"dsn"`
	Table          string   `yaml:"table"`
	KeyColumn      string   `yaml:"keyColumn"`
	Columns        []string `yaml:"columns"`
	RevisionColumn string   `yaml:"revisionColumn"`
	PageSize       int      `yaml:"pageSize"`
}

type MappingConfig struct {
	EnforceMandatoryOnDerived bool         `yaml:"enforceMandatoryOnDerived"`
	Items                     []ItemConfig `yaml:"items"`
}

type ItemConfig struct {
	IntName      string   `yaml:"intName"`
	ExtName      string   `yaml:"extName"`
	Kind         string   `yaml:"kind"`
	Purpose      string   `yaml:"purpose"`
	Key          bool     `yaml:"key"`
	Password     bool     `yaml:"password"`
	Mandatory    string   `yaml:"mandatory"`
	Transformers []string `yaml:"transformers"`
}

// TaskSpec describes one reconciliation task plus its optional schedule.
type TaskSpec struct {
	Name            string                    `yaml:"name"`
	Resource        string                    `yaml:"resource"`
	ObjectClass     string                    `yaml:"objectClass"`
	Kind            string                    `yaml:"kind"`
	Mode            string                    `yaml:"mode"`
	FilterAttr      string                    `yaml:"filterAttr"`
	FilterValue     string                    `yaml:"filterValue"`
	MatchingRule    string                    `yaml:"matchingRule"`
	UnmatchingRule  string                    `yaml:"unmatchingRule"`
	CorrelationRule string                    `yaml:"correlationRule"`
	PerformCreate   *bool                     `yaml:"performCreate"`
	PerformUpdate   *bool                     `yaml:"performUpdate"`
	PerformDelete   bool                      `yaml:"performDelete"`
	DryRun          bool                      `yaml:"dryRun"`
	Interval        string                    `yaml:"interval"`
	Templates       map[string]TemplateConfig `yaml:"templates"`
}

type TemplateConfig struct {
	Attrs map[string][]string `yaml:"attrs"`
}

// SchemaError reports a configuration file that failed schema validation.
type SchemaError struct {
	Path    string
	Message string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Path, e.Message)
}

// Load reads, env-expands, schema-checks, and decodes a config file.
// Environment references use ${VAR} syntax and are expanded before
// parsing, so secrets stay out of the file itself.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(path, []byte(os.ExpandEnv(string(raw))))
}

// Parse validates and decodes config bytes. Exposed for tests.
func Parse(path string, raw []byte) (*Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, &SchemaError{Path: path, Message: fmt.Sprintf("parsing YAML: %v", err)}
	}
	if err := validateSchema(tree); err != nil {
		return nil, &SchemaError{Path: path, Message: err.Error()}
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, &SchemaError{Path: path, Message: fmt.Sprintf("decoding config: %v", err)}
	}
	applyDefaults(&cfg)
	if err := crossCheck(&cfg); err != nil {
		return nil, &SchemaError{Path: path, Message: err.Error()}
	}
	return &cfg, nil
}

// validateSchema unifies the decoded tree with the embedded CUE schema.
func validateSchema(tree map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	data := ctx.Encode(tree)
	if err := data.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return fmt.Errorf("schema violation: %s", cueerrors.Details(err, nil))
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = "idprov.db"
	}
	if cfg.PasswordPolicy.Length == 0 {
		cfg.PasswordPolicy = PasswordConfig{
			Length:       16,
			RequireUpper: true,
			RequireLower: true,
			RequireDigit: true,
		}
	}
}

// crossCheck catches references the schema cannot see across sections.
func crossCheck(cfg *Config) error {
	byName := make(map[string]bool, len(cfg.Resources))
	for _, r := range cfg.Resources {
		if byName[r.Name] {
			return fmt.Errorf("duplicate resource %q", r.Name)
		}
		byName[r.Name] = true
	}
	taskNames := make(map[string]bool, len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		if taskNames[t.Name] {
			return fmt.Errorf("duplicate task %q", t.Name)
		}
		taskNames[t.Name] = true
		if !byName[t.Resource] {
			return fmt.Errorf("task %q references unknown resource %q", t.Name, t.Resource)
		}
		if t.Interval != "" {
			if _, err := time.ParseDuration(t.Interval); err != nil {
				return fmt.Errorf("task %q: bad interval %q: %v", t.Name, t.Interval, err)
			}
		}
	}
	if cfg.VirtualCacheTTL != "" {
		if _, err := time.ParseDuration(cfg.VirtualCacheTTL); err != nil {
			return fmt.Errorf("bad virtualCacheTTL %q: %v", cfg.VirtualCacheTTL, err)
		}
	}
	return nil
}
