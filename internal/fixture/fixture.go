// Package fixture loads property fixtures: a room list and a stay list
// in YAML, checked against an embedded CUE schema before decoding.
package fixture

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

//go:embed schema.cue
var schemaCUE string

// ErrInvalid is returned for fixtures that fail the schema or the record
// invariants.
var ErrInvalid = errors.New("invalid fixture")

// Fixture is one property's rooms and stays.
type Fixture struct {
	Property string        `yaml:"property,omitempty"`
	Rooms    []domain.Room `yaml:"rooms"`
	Stays    []domain.Stay `yaml:"stays,omitempty"`
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse validates data against the schema, then decodes it with strict
// field checking. Rooms and stays without a property inherit the
// fixture's.
func Parse(data []byte) (*Fixture, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}

	var f Fixture
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := f.check(); err != nil {
		return nil, err
	}
	for i := range f.Rooms {
		if f.Rooms[i].PropertyID == "" {
			f.Rooms[i].PropertyID = f.Property
		}
	}
	for i := range f.Stays {
		if f.Stays[i].PropertyID == "" {
			f.Stays[i].PropertyID = f.Property
		}
	}
	return &f, nil
}

// Validate checks raw YAML against the #Fixture schema. All schema
// violations are reported together.
func Validate(data []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	doc, err := nodeValue(&node)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling fixture schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Fixture"))

	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w:\n%s", ErrInvalid, cueerrors.Details(err, nil))
	}
	return nil
}

// nodeValue converts a YAML node to plain Go values. Scalars keep their
// source text unless tagged as numbers, booleans or null, so unquoted
// dates stay YYYY-MM-DD strings.
func nodeValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return map[string]any{}, nil
		}
		return nodeValue(n.Content[0])
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := nodeValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := nodeValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.AliasNode:
		return nodeValue(n.Alias)
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!int":
			return strconv.ParseInt(n.Value, 0, 64)
		case "!!float":
			return strconv.ParseFloat(n.Value, 64)
		case "!!bool":
			return strconv.ParseBool(n.Value)
		case "!!null":
			return nil, nil
		}
		return n.Value, nil
	}
	return nil, fmt.Errorf("line %d: unsupported YAML node", n.Line)
}

// check enforces what the schema cannot: unique ids and check-out after
// check-in.
func (f *Fixture) check() error {
	rooms := make(map[string]bool, len(f.Rooms))
	for _, r := range f.Rooms {
		if rooms[r.ID] {
			return fmt.Errorf("%w: duplicate room %s", ErrInvalid, r.ID)
		}
		rooms[r.ID] = true
	}
	stays := make(map[string]bool, len(f.Stays))
	for _, s := range f.Stays {
		if stays[s.ID] {
			return fmt.Errorf("%w: duplicate stay %s", ErrInvalid, s.ID)
		}
		stays[s.ID] = true
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// Seeder is the write side of a stay store.
type Seeder interface {
	UpsertRoom(ctx context.Context, r domain.Room) error
	InsertStay(ctx context.Context, s domain.Stay) (domain.Stay, error)
}

// Failure is one record Seed could not write.
type Failure struct {
	Entity domain.EntityKind
	ID     string
	Err    error
}

// SeedResult counts what Seed wrote.
type SeedResult struct {
	Rooms    int
	Stays    int
	Failures []Failure
}

// Seed writes every room, then every stay. A failing record is recorded
// and skipped; the rest are still written. The error is non-nil only when
// ctx ends.
func (f *Fixture) Seed(ctx context.Context, s Seeder) (SeedResult, error) {
	var res SeedResult
	for _, r := range f.Rooms {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.UpsertRoom(ctx, r); err != nil {
			res.Failures = append(res.Failures, Failure{Entity: domain.EntityRoom, ID: r.ID, Err: err})
			continue
		}
		res.Rooms++
	}
	for _, st := range f.Stays {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if _, err := s.InsertStay(ctx, st); err != nil {
			res.Failures = append(res.Failures, Failure{Entity: domain.EntityStay, ID: st.ID, Err: err})
			continue
		}
		res.Stays++
	}
	return res, nil
}
