package schemadef

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// RenderConfig specifies how Go declarations are generated from a schema.
type RenderConfig struct {
	// PackageName is the package of the generated file.
	PackageName string
	// ModulePath is the import path of the odm package.
	ModulePath string
	// UseAcronyms applies Go acronym casing (ID rather than Id).
	UseAcronyms bool
	// Structs, if true, also generates a tagged struct per type for
	// odm.Decode and odm.Encode.
	Structs bool
	// Enums, if true, generates string constants from @choices of strings.
	Enums bool
}

// DefaultConfig returns the settings used by `odmctl gen`.
func DefaultConfig() RenderConfig {
	return RenderConfig{
		PackageName: "models",
		ModulePath:  "github.com/CaliLuke/go-docmap/odm",
		UseAcronyms: true,
		Structs:     true,
		Enums:       true,
	}
}

// Render writes Go source declaring every type of schema.
func Render(w io.Writer, schema *ParsedSchema, cfg RenderConfig) error {
	if cfg.PackageName == "" {
		cfg.PackageName = "models"
	}
	if cfg.ModulePath == "" {
		cfg.ModulePath = DefaultConfig().ModulePath
	}

	data := &renderData{PackageName: cfg.PackageName, ModulePath: cfg.ModulePath}
	for _, ts := range schema.Types {
		tc, err := buildTypeCtx(schema, ts, cfg)
		if err != nil {
			return err
		}
		if tc.NeedsTime {
			data.NeedsTime = true
		}
		data.Types = append(data.Types, tc)
		if cfg.Enums {
			data.Enums = append(data.Enums, buildEnumCtxs(ts, cfg)...)
		}
	}
	return renderTemplate.Execute(w, data)
}

// --- Template context types ---

type renderData struct {
	PackageName string
	ModulePath  string
	NeedsTime   bool
	Enums       []enumCtx
	Types       []typeCtx
}

type enumCtx struct {
	TypeName string
	Field    string
	Values   []enumValueCtx
}

type enumValueCtx struct {
	GoName string
	Value  string
}

type typeCtx struct {
	GoName     string
	VarName    string
	TypeName   string
	Embedded   bool
	Collection string
	Structs    bool
	NeedsTime  bool
	Fields     []fieldCtx
}

type fieldCtx struct {
	Name   string
	GoName string
	GoType string
	Tag    string
	Decl   string
}

// --- Context builders ---

func buildTypeCtx(schema *ParsedSchema, ts TypeSpec, cfg RenderConfig) (typeCtx, error) {
	goName := goTypeName(ts.Name, cfg)
	tc := typeCtx{
		GoName:     goName,
		VarName:    goName + "Type",
		TypeName:   ts.Name,
		Embedded:   ts.Embedded,
		Collection: ts.Collection,
		Structs:    cfg.Structs,
	}
	if cfg.Structs && !ts.Embedded {
		tc.Fields = append(tc.Fields, fieldCtx{GoName: "ID", GoType: "any", Tag: "`odm:\"id\"`"})
	}
	for _, fs := range ts.Fields {
		fc, usesTime, err := buildFieldCtx(schema, ts.Name, fs, cfg)
		if err != nil {
			return tc, err
		}
		if usesTime {
			tc.NeedsTime = true
		}
		tc.Fields = append(tc.Fields, fc)
	}
	return tc, nil
}

func buildFieldCtx(schema *ParsedSchema, typeName string, fs FieldSpec, cfg RenderConfig) (fieldCtx, bool, error) {
	fc := fieldCtx{
		Name:   fs.Name,
		GoName: goTypeName(fs.Name, cfg),
		Tag:    fmt.Sprintf("`odm:%q`", fs.Name),
	}

	typeExpr, goType, err := typeExprs(schema, fs.TypeName, cfg)
	if err != nil {
		return fc, false, fmt.Errorf("render %s.%s: %w", typeName, fs.Name, err)
	}
	usesTime := fs.TypeName == "Date" && cfg.Structs
	if fs.Array {
		typeExpr = "[]odm.Type{" + typeExpr + "}"
		goType = "[]" + goType
	}
	fc.GoType = goType

	var opts []string
	lit := func(label string, v any) error {
		if v == nil {
			return nil
		}
		s, isTime, err := goLiteral(fs.TypeName, v)
		if err != nil {
			return fmt.Errorf("render %s.%s: %w", typeName, fs.Name, err)
		}
		usesTime = usesTime || isTime
		opts = append(opts, label+": "+s)
		return nil
	}
	for _, o := range []struct {
		label string
		v     any
	}{{"Default", fs.Default}, {"Min", fs.Min}, {"Max", fs.Max}} {
		if err := lit(o.label, o.v); err != nil {
			return fc, false, err
		}
	}
	if len(fs.Choices) > 0 {
		vals := make([]string, len(fs.Choices))
		for i, c := range fs.Choices {
			s, isTime, err := goLiteral(fs.TypeName, c)
			if err != nil {
				return fc, false, fmt.Errorf("render %s.%s: %w", typeName, fs.Name, err)
			}
			usesTime = usesTime || isTime
			vals[i] = s
		}
		opts = append(opts, "Choices: []any{"+strings.Join(vals, ", ")+"}")
	}
	if fs.Match != "" {
		opts = append(opts, "Match: "+strconv.Quote(fs.Match))
	}
	if fs.Required {
		opts = append(opts, "Required: true")
	}
	if fs.Unique {
		opts = append(opts, "Unique: true")
	}

	if len(opts) == 0 {
		fc.Decl = typeExpr
	} else {
		fc.Decl = "odm.Field{Type: " + typeExpr + ", " + strings.Join(opts, ", ") + "}"
	}
	return fc, usesTime, nil
}

// typeExprs returns the odm type expression and the Go struct field type.
func typeExprs(schema *ParsedSchema, name string, cfg RenderConfig) (string, string, error) {
	switch name {
	case "String":
		return "odm.String", "string", nil
	case "Number":
		return "odm.Number", "float64", nil
	case "Boolean":
		return "odm.Boolean", "bool", nil
	case "Date":
		return "odm.Date", "time.Time", nil
	case "Object":
		return "odm.Object", "map[string]any", nil
	case "Any":
		return "odm.Any", "any", nil
	case "ID":
		return "odm.ID", "any", nil
	}
	ts, ok := schema.Type(name)
	if !ok {
		return "", "", fmt.Errorf("unknown type %s", name)
	}
	expr := fmt.Sprintf("odm.Ref(%q)", name)
	if ts.Embedded {
		return expr, goTypeName(name, cfg), nil
	}
	// References hold the foreign identity until populated.
	return expr, "any", nil
}

// goLiteral renders a literal as Go source. Date literals become time.Date
// calls.
func goLiteral(typeName string, v any) (string, bool, error) {
	if typeName == "Date" {
		at, err := literalFor(Scalars["Date"], v)
		if err != nil {
			return "", false, err
		}
		t := at.(time.Time)
		return fmt.Sprintf("time.Date(%d, time.%s, %d, %d, %d, %d, %d, time.UTC)",
			t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond()), true, nil
	}
	switch tv := v.(type) {
	case string:
		return strconv.Quote(tv), false, nil
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64), false, nil
	case bool:
		return strconv.FormatBool(tv), false, nil
	}
	return "", false, fmt.Errorf("unsupported literal %v", v)
}

func buildEnumCtxs(ts TypeSpec, cfg RenderConfig) []enumCtx {
	var out []enumCtx
	for _, fs := range ts.Fields {
		ec := enumCtx{TypeName: ts.Name, Field: fs.Name}
		prefix := goTypeName(ts.Name, cfg) + goTypeName(fs.Name, cfg)
		for _, c := range fs.Choices {
			s, ok := c.(string)
			if !ok {
				ec.Values = nil
				break
			}
			ec.Values = append(ec.Values, enumValueCtx{GoName: prefix + goTypeName(enumWord(s), cfg), Value: s})
		}
		if len(ec.Values) > 0 {
			out = append(out, ec)
		}
	}
	return out
}

// enumWord maps a choice value to identifier characters.
func enumWord(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '_' || r == '-' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9') {
			return r
		}
		return '_'
	}, s)
}

func goTypeName(name string, cfg RenderConfig) string {
	if cfg.UseAcronyms {
		return ToPascalCaseAcronyms(name)
	}
	return ToPascalCase(name)
}

// --- Go template ---

var renderTemplate = template.Must(template.New("models").Parse(`// Code generated by odmctl gen. DO NOT EDIT.

package {{.PackageName}}

import (
{{- if .NeedsTime}}
	"time"
{{- end}}
	"{{.ModulePath}}"
)
{{- if .Enums}}

// --- Choice constants (from @choices) ---
{{range .Enums}}
// Values allowed for {{.TypeName}}.{{.Field}}.
const (
{{- range .Values}}
	{{.GoName}} = {{printf "%q" .Value}}
{{- end}}
)
{{end}}
{{- end}}
{{range .Types}}
{{- if .Structs}}
// {{.GoName}} mirrors the {{.TypeName}} {{if .Embedded}}embedded {{end}}type for odm.Decode and odm.Encode.
type {{.GoName}} struct {
{{- range .Fields}}
	{{.GoName}} {{.GoType}} {{.Tag}}
{{- end}}
}
{{end}}
// {{.VarName}} declares and registers {{.TypeName}}.
var {{.VarName}} = odm.{{if .Embedded}}MustEmbedded{{else}}MustDocument{{end}}({{printf "%q" .TypeName}}, odm.Fields{
{{- range .Fields}}{{if .Decl}}
	{{printf "%q" .Name}}: {{.Decl}},
{{- end}}{{end}}
}{{if .Collection}}, odm.WithCollection({{printf "%q" .Collection}}){{end}})
{{end}}`))
