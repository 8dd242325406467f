// internal/form/definition.go
//
// Knit – Forms subsystem: YAML definition loader.
//
// Context
//   Each lead-capture form is declared in a YAML file under conf/forms/.
//   The file names the form, the lead variant it formats into, the decoy
//   honeypot field, the initial values, and the ordered field list with
//   validation rule descriptors.  At start-up every “*.yaml” is parsed once,
//   compiled into a validation.RuleSet, and stored in a Catalog so the API
//   can create controller instances by ID.
//
// Workflow
//   •  Structs mirror the YAML schema: Definition → FieldDef.
//   •  LoadDefinition parses one file and validates structural rules.
//   •  Catalog.LoadDir walks one or more directories in precedence order;
//      the first directory that declares an ID wins.
//   •  Catalog.Get / List give read-only access.
//
// Style
//   Full sentences, two spaces after periods, Oxford commas.
//
//------------------------------------------------------------------------------

package form

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yanizio/knit/internal/lead"
	"github.com/yanizio/knit/internal/slug"
	"github.com/yanizio/knit/internal/validation"
)

// DefaultHoneypot is the decoy field name used when a definition does not
// declare one.
const DefaultHoneypot = "website_url"

// ErrUnknownForm is returned by Catalog lookups for an undeclared ID.
var ErrUnknownForm = errors.New("form: unknown form")

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Definition represents one form loaded from YAML.
type Definition struct {
	ID       string         `yaml:"id"       json:"id"`
	Title    string         `yaml:"title"    json:"title"`
	FormType lead.FormType  `yaml:"formType" json:"formType"`
	Honeypot string         `yaml:"honeypot" json:"honeypot"`
	Endpoint string         `yaml:"endpoint" json:"-"` // POST target, empty → simulated submit.
	Initial  map[string]any `yaml:"initial"  json:"initial"`
	Fields   []FieldDef     `yaml:"fields"   json:"fields"`

	rules validation.RuleSet
}

// FieldDef describes one input and its rule descriptor.
type FieldDef struct {
	Name      string   `yaml:"name"      json:"name"`
	Label     string   `yaml:"label"     json:"label"`
	Type      string   `yaml:"type"      json:"type"` // text, email, tel, select, textarea, checkbox
	Required  bool     `yaml:"required"  json:"required,omitempty"`
	Email     bool     `yaml:"email"     json:"email,omitempty"`
	MinLength int      `yaml:"minlength" json:"minLength,omitempty"`
	MaxLength int      `yaml:"maxlength" json:"maxLength,omitempty"`
	Pattern   string   `yaml:"pattern"   json:"pattern,omitempty"`
	Custom    string   `yaml:"custom"    json:"custom,omitempty"` // name registered with validation.RegisterCustom
	Options   []string `yaml:"options"   json:"options,omitempty"`

	// AllowOther keeps Options as suggestions only.  Without it a select
	// rejects values outside Options.
	AllowOther bool `yaml:"allow_other" json:"allowOther,omitempty"`
}

// Rules returns the compiled rule set.  Shared, do not mutate.
func (d *Definition) Rules() validation.RuleSet { return d.rules }

// FieldNames returns field names in declaration order.
func (d *Definition) FieldNames() []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = f.Name
	}
	return out
}

// InitialValues returns a fresh copy of the initial-values object.  Every
// declared field gets an entry: "" for inputs and false for checkboxes.
func (d *Definition) InitialValues() map[string]any {
	out := make(map[string]any, len(d.Fields)+1)
	for _, f := range d.Fields {
		if f.Type == "checkbox" {
			out[f.Name] = false
		} else {
			out[f.Name] = ""
		}
	}
	for k, v := range d.Initial {
		out[k] = v
	}
	if d.Honeypot != "" {
		if _, ok := out[d.Honeypot]; !ok {
			out[d.Honeypot] = ""
		}
	}
	return out
}

// hasField reports whether name is a declared field, initial value, or the
// honeypot.
func (d *Definition) hasField(name string) bool {
	if name == d.Honeypot {
		return true
	}
	if _, ok := d.rules[name]; ok {
		return true
	}
	if _, ok := d.Initial[name]; ok {
		return true
	}
	for _, f := range d.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Compile validates structural rules and builds the rule set.  LoadDefinition
// calls it; code that builds a Definition by hand must call it too.
func (d *Definition) Compile() error {
	if d.ID == "" {
		return errors.New("missing required 'id'")
	}
	if !slug.Valid(d.ID) {
		return fmt.Errorf("id %q must be lower-kebab ASCII (try %q)", d.ID, slug.Make(d.ID))
	}
	if d.FormType != "" && !d.FormType.Valid() {
		return fmt.Errorf("form %s: unknown formType %q", d.ID, d.FormType)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("form %s: must have 'fields'", d.ID)
	}
	if d.Honeypot == "" {
		d.Honeypot = DefaultHoneypot
	}

	rules := make(validation.RuleSet, len(d.Fields))
	for i := range d.Fields {
		f := &d.Fields[i]
		if err := validateField(f); err != nil {
			return fmt.Errorf("form %s: %w", d.ID, err)
		}
		if _, dup := rules[f.Name]; dup {
			return fmt.Errorf("form %s: duplicate field name '%s'", d.ID, f.Name)
		}
		if f.Name == d.Honeypot {
			return fmt.Errorf("form %s: field '%s' collides with the honeypot", d.ID, f.Name)
		}

		r := validation.Rule{
			Required:  f.Required,
			Email:     f.Email || f.Type == "email",
			MinLength: f.MinLength,
			MaxLength: f.MaxLength,
		}
		if len(f.Options) > 0 && !f.AllowOther {
			r.OneOf = slices.Clone(f.Options)
		}
		if f.Pattern != "" {
			re, err := validation.CompilePattern(f.Pattern)
			if err != nil {
				return fmt.Errorf("form %s: field '%s' invalid regex pattern: %w", d.ID, f.Name, err)
			}
			r.Pattern = re
		}
		if f.Custom != "" {
			fn, ok := validation.Custom(f.Custom)
			if !ok {
				return fmt.Errorf("form %s: field '%s' unknown custom validator %q", d.ID, f.Name, f.Custom)
			}
			r.Custom = fn
		}
		rules[f.Name] = r
	}
	d.rules = rules
	return nil
}

// validateField confirms that essential attributes are present and sane.
func validateField(f *FieldDef) error {
	if f.Name == "" {
		return errors.New("field missing 'name'")
	}
	if f.Name == validation.FormErrorKey {
		return fmt.Errorf("field name '%s' is reserved", f.Name)
	}
	if f.Type == "" {
		f.Type = "text"
	}
	if f.MinLength < 0 || f.MaxLength < 0 {
		return fmt.Errorf("field '%s' minlength/maxlength cannot be negative", f.Name)
	}
	if f.MaxLength > 0 && f.MinLength > f.MaxLength {
		return fmt.Errorf("field '%s' minlength greater than maxlength", f.Name)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// LoadDefinition parses one YAML file and returns a compiled Definition.
// A file without an id takes the slug of its base name.
func LoadDefinition(path string) (*Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return parseDefinition(raw, path, slug.Make(stem))
}

// ParseDefinition compiles YAML bytes.  name only labels errors.
func ParseDefinition(raw []byte, name string) (*Definition, error) {
	return parseDefinition(raw, name, "")
}

func parseDefinition(raw []byte, name, fallbackID string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", name, err)
	}
	if d.ID == "" {
		d.ID = fallbackID
	}
	if err := d.Compile(); err != nil {
		return nil, fmt.Errorf("form definition %s: %w", name, err)
	}
	return &d, nil
}

// -----------------------------------------------------------------------------
// Catalog
// -----------------------------------------------------------------------------

// Catalog holds compiled definitions by ID.  Safe for concurrent use.
type Catalog struct {
	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{defs: make(map[string]*Definition)}
}

// LoadDir walks dirs in precedence order (overrides first) and registers
// every “*.yaml” / “*.yml”.  Missing directories are skipped; parse errors
// fail fast so issues surface loudly.
func (c *Catalog) LoadDir(dirs ...string) error {
	if len(dirs) == 0 {
		return errors.New("LoadDir: no directories provided")
	}
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				return nil
			}
			if ext := strings.ToLower(filepath.Ext(d.Name())); ext != ".yaml" && ext != ".yml" {
				return nil
			}
			def, err := LoadDefinition(path)
			if err != nil {
				return err
			}
			c.mu.Lock()
			if _, taken := c.defs[def.ID]; !taken {
				c.defs[def.ID] = def
			}
			c.mu.Unlock()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Register inserts or replaces def.  def must already be compiled.
func (c *Catalog) Register(def *Definition) {
	c.mu.Lock()
	c.defs[def.ID] = def
	c.mu.Unlock()
}

// Get returns the definition for id.
func (c *Catalog) Get(id string) (*Definition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.defs[id]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownForm, id)
}

// List returns all definitions sorted by ID.
func (c *Catalog) List() []*Definition {
	c.mu.RLock()
	out := make([]*Definition, 0, len(c.defs))
	for _, d := range c.defs {
		out = append(out, d)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
