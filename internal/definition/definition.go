// Package definition reads collection and condition definitions from YAML or
// JSON documents and builds analysis collections from them.
package definition

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/evalerr"
	"github.com/smukkama/tsa/internal/logger"
)

// File is a definition document
type File struct {
	Collections []Collection `yaml:"collections" json:"collections" validate:"required,min=1,dive"`
}

// Collection defines one analysis collection
type Collection struct {
	Title      string      `yaml:"title" json:"title" validate:"required"`
	From       Date        `yaml:"from" json:"from"`
	Until      Date        `yaml:"until" json:"until"`
	MaxGap     Duration    `yaml:"max_gap,omitempty" json:"max_gap,omitempty"`
	Conditions []Condition `yaml:"conditions" json:"conditions"`
}

// Condition defines one condition row. Incomplete rows are reported on the
// collection instead of failing the document.
type Condition struct {
	Site        string `yaml:"site" json:"site"`
	MasterAlias string `yaml:"master_alias" json:"master_alias"`
	Condition   string `yaml:"condition" json:"condition"`
}

var dateLayouts = []string{time.DateOnly, "02.01.2006", time.RFC3339}

// Date is a calendar day written as 2006-01-02 or 02.01.2006
type Date struct {
	time.Time
}

// ParseDate parses s with the accepted date layouts
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Date{t}, nil
		}
	}
	return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or DD.MM.YYYY", s)
}

func (d *Date) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseDate(value.Value)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalYAML() (interface{}, error) {
	return d.Format(time.DateOnly), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(time.DateOnly))
}

// Duration is a time.Duration written like "30m"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var validate = validator.New()

// Validate checks the document structure
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		return fmt.Errorf("invalid definition: %w", err)
	}
	for i, c := range f.Collections {
		if c.From.IsZero() || c.Until.IsZero() {
			return fmt.Errorf("invalid definition: collection %d (%q) needs from and until dates", i, c.Title)
		}
	}
	return nil
}

// Load decodes and validates a YAML or JSON document
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads a definition document from path
func LoadFile(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open definition: %w", err)
	}
	defer fh.Close()
	return Load(fh)
}

// Build creates the analysis collections. Condition errors are recorded on
// the collections; an error is returned only for collections that cannot be
// created at all.
func (f *File) Build() ([]*analysis.Collection, error) {
	log := logger.For(logger.ComponentDefinition)
	out := make([]*analysis.Collection, 0, len(f.Collections))
	for _, def := range f.Collections {
		c, err := analysis.NewCollection(def.Title, def.From.Time, def.Until.Time, def.MaxGap.Duration)
		if err != nil {
			return nil, fmt.Errorf("failed to create collection %q: %w", def.Title, err)
		}

		for i, row := range def.Conditions {
			if strings.TrimSpace(row.Site) == "" || strings.TrimSpace(row.MasterAlias) == "" || strings.TrimSpace(row.Condition) == "" {
				c.Errors.Addf(evalerr.KindInput, "condition row %d: site, master_alias and condition are required", i+1)
				log.Warnf("Collection %q: incomplete condition row %d skipped", def.Title, i+1)
				continue
			}
			_, _ = c.AddCondition(row.Site, row.MasterAlias, row.Condition)
		}
		log.Debugf("Collection %q: %d conditions, %d errors", c.Title, len(c.Conditions()), c.Errors.Len())
		out = append(out, c)
	}
	return out, nil
}

// DefaultMaxGap sets the max gap of every collection that does not
// define one
func (f *File) DefaultMaxGap(d time.Duration) {
	for i := range f.Collections {
		if f.Collections[i].MaxGap.Duration <= 0 {
			f.Collections[i].MaxGap.Duration = d
		}
	}
}
