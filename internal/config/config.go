// Package config loads federation configuration from CUE.
//
// A configuration is a `federation` block checked against the embedded
// #Federation schema:
//
//	federation: {
//		default:   "local"
//		batchSize: 20
//		members: {
//			local: {kind: "local", path: "data.db"}
//			wiki: {
//				kind:     "sparql"
//				ref:      "https://query.example.org/sparql"
//				endpoint: "https://query.example.org/sparql"
//				auth: bearer: "${wiki_token}"
//			}
//		}
//	}
//
// Errors carry the CUE position of the offending field.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fedq/internal/ir"
	"github.com/roach88/fedq/internal/member"
)

//go:embed schema.cue
var schemaSource string

// Config is a decoded federation configuration.
type Config struct {
	// Dir is the directory relative member paths are resolved against.
	Dir         string
	Default     string
	BatchSize   int
	Parallelism int
	QueueSize   int
	// Members in declaration order.
	Members []Member
}

// Member configures one federation member.
type Member struct {
	ID         string
	Kind       member.Kind
	Ref        string
	Path       string
	Queryable  bool
	Endpoint   string
	Auth       Auth
	Descriptor *member.Descriptor
}

// Auth holds member credentials; each field may be a secret lookup.
type Auth struct {
	Bearer   string `json:"bearer"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type rawMember struct {
	Kind       string         `json:"kind"`
	Ref        string         `json:"ref"`
	Path       string         `json:"path"`
	Queryable  bool           `json:"queryable"`
	Endpoint   string         `json:"endpoint"`
	Auth       Auth           `json:"auth"`
	Descriptor *rawDescriptor `json:"descriptor"`
}

type rawDescriptor struct {
	Label       string         `json:"label"`
	Cardinality string         `json:"cardinality"`
	OutputCount int            `json:"outputCount"`
	ResultPath  string         `json:"resultPath"`
	Inputs      []rawParameter `json:"inputs"`
	Outputs     []rawParameter `json:"outputs"`
	Patterns    []string       `json:"patterns"`
}

type rawParameter struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Type     string `json:"type"`
	Default  string `json:"default"`
	Optional bool   `json:"optional"`
}

// Load reads the configuration at path, a .cue file or a directory of
// them.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("config not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing config: %v", err)}
	}

	dir, args := path, []string{"."}
	if !info.IsDir() {
		dir, args = filepath.Dir(path), []string{filepath.Base(path)}
	} else {
		files, err := filepath.Glob(filepath.Join(dir, "*.cue"))
		if err != nil {
			return nil, &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}
		}
	}

	instances := load.Instances(args, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, formatCUEError(ErrCodeLoadFailed, inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, err)
	}
	cfg, err := Decode(value)
	if err != nil {
		return nil, err
	}
	cfg.Dir = dir
	return cfg, nil
}

// Decode checks v's federation block against the schema and decodes it.
func Decode(v cue.Value) (*Config, error) {
	fed := v.LookupPath(cue.ParsePath("federation"))
	if !fed.Exists() {
		return nil, &LoadError{Code: ErrCodeMissingFederation, Message: "federation block is required", Pos: v.Pos()}
	}

	src := fed
	schema := v.Context().CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}
	fed = schema.LookupPath(cue.ParsePath("#Federation")).Unify(fed)
	if err := fed.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	cfg := &Config{}
	var err error
	if cfg.BatchSize, err = intField(fed, "batchSize"); err != nil {
		return nil, err
	}
	if cfg.Parallelism, err = intField(fed, "parallelism"); err != nil {
		return nil, err
	}
	if cfg.QueueSize, err = intField(fed, "queueSize"); err != nil {
		return nil, err
	}

	iter, err := fed.LookupPath(cue.ParsePath("members")).Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeGeneric, err)
	}
	for iter.Next() {
		id := iter.Label()
		pos := src.LookupPath(cue.MakePath(cue.Str("members"), cue.Str(id))).Pos()
		m, err := decodeMember(id, iter.Value(), pos)
		if err != nil {
			return nil, err
		}
		cfg.Members = append(cfg.Members, m)
	}

	if d := src.LookupPath(cue.ParsePath("default")); d.Exists() {
		if cfg.Default, err = d.String(); err != nil {
			return nil, formatCUEError(ErrCodeSchema, err)
		}
		if _, ok := cfg.Member(cfg.Default); !ok {
			return nil, &LoadError{
				Code:    ErrCodeUnknownDefault,
				Message: fmt.Sprintf("default member %q is not configured", cfg.Default),
				Pos:     d.Pos(),
			}
		}
	}
	return cfg, nil
}

// Member returns the member configured under id.
func (c *Config) Member(id string) (Member, bool) {
	for _, m := range c.Members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}

func intField(v cue.Value, name string) (int, error) {
	f := v.LookupPath(cue.ParsePath(name))
	n, err := f.Int64()
	if err != nil {
		return 0, formatCUEError(ErrCodeSchema, err)
	}
	return int(n), nil
}

// decodeMember decodes one schema-checked member. pos locates the member
// in the user's source.
func decodeMember(id string, v cue.Value, pos token.Pos) (Member, error) {
	var raw rawMember
	if err := v.Decode(&raw); err != nil {
		return Member{}, formatCUEError(ErrCodeSchema, err)
	}
	m := Member{
		ID:        id,
		Kind:      member.Kind(raw.Kind),
		Ref:       raw.Ref,
		Path:      raw.Path,
		Queryable: raw.Queryable,
		Endpoint:  raw.Endpoint,
		Auth:      raw.Auth,
	}
	if m.Ref == "" {
		m.Ref = id
	}

	fieldErr := func(format string, args ...any) error {
		return &LoadError{
			Code:    ErrCodeMemberField,
			Message: fmt.Sprintf("member %s: ", id) + fmt.Sprintf(format, args...),
			Pos:     pos,
		}
	}
	switch m.Kind {
	case member.KindLocal:
		if m.Path == "" {
			return Member{}, fieldErr("local members need a path")
		}
	default:
		if m.Endpoint == "" {
			return Member{}, fieldErr("%s members need an endpoint", m.Kind)
		}
		if m.Queryable {
			return Member{}, fieldErr("only local members can be queryable")
		}
	}
	needsDescriptor := m.Kind == member.KindREST || m.Kind == member.KindKeyword || m.Kind == member.KindAggregate
	switch {
	case needsDescriptor && raw.Descriptor == nil:
		return Member{}, fieldErr("%s members need a descriptor", m.Kind)
	case !needsDescriptor && raw.Descriptor != nil:
		return Member{}, fieldErr("%s members take no descriptor", m.Kind)
	}

	if raw.Descriptor != nil {
		d, err := decodeDescriptor(id, raw.Descriptor)
		if err != nil {
			return Member{}, &LoadError{
				Code:    ErrCodeDescriptor,
				Message: err.Error(),
				Pos:     pos,
			}
		}
		m.Descriptor = d
	}
	return m, nil
}

func decodeDescriptor(id string, raw *rawDescriptor) (*member.Descriptor, error) {
	d := &member.Descriptor{
		Label:       raw.Label,
		OutputCount: raw.OutputCount,
		ResultPath:  raw.ResultPath,
	}
	if d.Label == "" {
		d.Label = id
	}
	switch raw.Cardinality {
	case "one":
		d.Cardinality = member.CardinalityOne
	case "fixed":
		d.Cardinality = member.CardinalityFixed
	default:
		d.Cardinality = member.CardinalityMany
	}
	for _, p := range raw.Inputs {
		d.Inputs = append(d.Inputs, parameter(p))
	}
	for _, p := range raw.Outputs {
		d.Outputs = append(d.Outputs, parameter(p))
	}
	for _, text := range raw.Patterns {
		tp, err := member.ParseTemplate(text)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", text, err)
		}
		d.Patterns = append(d.Patterns, tp)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func parameter(p rawParameter) member.Parameter {
	out := member.Parameter{Name: p.Name, Path: p.Path, ValueType: ir.IRI(p.Type), Optional: p.Optional}
	if p.Default != "" {
		out.Default = ir.NewString(p.Default)
	}
	return out
}
