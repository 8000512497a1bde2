// Package rulefile reads and writes classification rules as YAML:
//
//	rules:
//	  - conditions: [{key: amount, op: "=", value: "125.00"}]
//	    actions: [{key: display, value: foo}]
//
// Rules are listed in chain order; loading appends them to the end of the
// stored chain.
package rulefile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"jjcook/budgetdb/internal/logging"
	"jjcook/budgetdb/internal/models"

	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up when no rule file is named.
const DefaultFile = "rules.yaml"

// File is the document layout.
type File struct {
	Rules []RuleDef `yaml:"rules"`
}

type RuleDef struct {
	Conditions []ConditionDef `yaml:"conditions"`
	Actions    []ActionDef    `yaml:"actions"`
}

type ConditionDef struct {
	Key   string `yaml:"key"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}

type ActionDef struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

// ChainInterface appends a rule at the tail of the stored chain.
type ChainInterface interface {
	Append(ctx context.Context, rule *models.Rule) error
}

// TxInterface runs fn inside one storage transaction.
type TxInterface interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderedInterface returns the stored rules in chain order.
type OrderedInterface interface {
	Load(ctx context.Context) ([]*models.Rule, error)
}

// Files moves rules between YAML documents and the stored chain.
type Files struct {
	chain   ChainInterface
	tx      TxInterface
	ordered OrderedInterface
	logger  logging.Logger
}

// New creates a Files.
func New(chain ChainInterface, tx TxInterface, ordered OrderedInterface, logger logging.Logger) *Files {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Files{chain: chain, tx: tx, ordered: ordered, logger: logger}
}

// FindFile looks for filename in the usual places: as given, then under
// config/ and database/, then in ~/.config/budgetdb.
func FindFile(filename string) (string, error) {
	if filename == "" {
		filename = DefaultFile
	}
	if filepath.IsAbs(filename) {
		if _, err := os.Stat(filename); err == nil {
			return filename, nil
		}
		return "", os.ErrNotExist
	}

	locations := []string{
		filename,
		filepath.Join("config", filename),
		filepath.Join("database", filename),
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		locations = append(locations, filepath.Join(homeDir, ".config", "budgetdb", filename))
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location, nil
		}
	}
	return "", os.ErrNotExist
}

// Parse decodes a rule document. A bare list without the top-level "rules"
// key is accepted too.
func Parse(data []byte) ([]*models.Rule, error) {
	var doc File
	if err := yaml.Unmarshal(data, &doc); err != nil {
		var list []RuleDef
		if listErr := yaml.Unmarshal(data, &list); listErr != nil {
			return nil, fmt.Errorf("error parsing rule file: %w", err)
		}
		doc.Rules = list
	}

	rules := make([]*models.Rule, 0, len(doc.Rules))
	for _, def := range doc.Rules {
		rule := &models.Rule{}
		for _, c := range def.Conditions {
			rule.Conditions = append(rule.Conditions, models.Condition{Key: c.Key, Op: c.Op, Value: c.Value})
		}
		for _, a := range def.Actions {
			rule.Actions = append(rule.Actions, models.Action{Key: a.Key, Value: a.Value})
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Marshal encodes rules in the order given.
func Marshal(rules []*models.Rule) ([]byte, error) {
	doc := File{Rules: make([]RuleDef, 0, len(rules))}
	for _, r := range rules {
		var def RuleDef
		for _, c := range r.Conditions {
			def.Conditions = append(def.Conditions, ConditionDef{Key: c.Key, Op: c.Op, Value: c.Value})
		}
		for _, a := range r.Actions {
			def.Actions = append(def.Actions, ActionDef{Key: a.Key, Value: a.Value})
		}
		doc.Rules = append(doc.Rules, def)
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("error marshaling rules: %w", err)
	}
	return data, nil
}

// Import appends every rule of filename to the chain in one transaction and
// returns how many were added. Nothing is stored when any rule is invalid.
func (f *Files) Import(ctx context.Context, filename string) (int, error) {
	path, err := FindFile(filename)
	if err != nil {
		return 0, fmt.Errorf("rule file %s: %w", filename, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("error reading rule file: %w", err)
	}
	rules, err := Parse(data)
	if err != nil {
		return 0, err
	}
	if len(rules) == 0 {
		f.logger.Warn("Rule file has no rules", logging.F(logging.FieldFile, path))
		return 0, nil
	}

	err = f.tx.WithinTx(ctx, func(ctx context.Context) error {
		for i, rule := range rules {
			if err := f.chain.Append(ctx, rule); err != nil {
				return fmt.Errorf("rule %d of %s: %w", i+1, path, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	f.logger.Info("Rules loaded",
		logging.F(logging.FieldFile, path),
		logging.F(logging.FieldCount, len(rules)))
	return len(rules), nil
}

// Export writes the stored chain to w and returns the number of rules.
func (f *Files) Export(ctx context.Context, w io.Writer) (int, error) {
	rules, err := f.ordered.Load(ctx)
	if err != nil {
		return 0, err
	}
	data, err := Marshal(rules)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("error writing rules: %w", err)
	}
	return len(rules), nil
}

// ExportFile writes the stored chain to path, creating its directory.
func (f *Files) ExportFile(ctx context.Context, path string) (int, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("error creating directory: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("error creating rule file: %w", err)
	}
	n, err := f.Export(ctx, out)
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return 0, err
	}
	f.logger.Debug("Rules exported", logging.F(logging.FieldFile, path), logging.F(logging.FieldCount, n))
	return n, nil
}
