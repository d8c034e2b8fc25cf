package schemadef

import (
	"fmt"
	"os"
	"strconv"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// --- Participle grammar structs ---

// FileP is the top-level grammar: a sequence of type declarations.
type FileP struct {
	Types []TypeDefP `parser:"@@*"`
}

// TypeDefP parses: (document | embedded) Name [@collection("...")] { field* }
type TypeDefP struct {
	Kind   string       `parser:"@('document' | 'embedded')"`
	Name   string       `parser:"@Ident"`
	Annots []TypeAnnotP `parser:"@@*"`
	Fields []FieldDefP  `parser:"'{' @@* '}'"`
}

// TypeAnnotP parses: @collection("name")
type TypeAnnotP struct {
	Collection string `parser:"'@collection' '(' @String ')'"`
}

// FieldDefP parses: name: Type [annotation...];
type FieldDefP struct {
	Name   string        `parser:"@Ident ':'"`
	Type   TypeRefP      `parser:"@@"`
	Annots []FieldAnnotP `parser:"@@* ';'"`
}

// TypeRefP parses either [Elem] or Name.
type TypeRefP struct {
	Elem string `parser:"  '[' @Ident ']'"`
	Name string `parser:"| @Ident"`
}

// FieldAnnotP is one of @required, @unique, @default, @min, @max, @match, @choices.
type FieldAnnotP struct {
	Required bool       `parser:"  @'@required'"`
	Unique   bool       `parser:"| @'@unique'"`
	Default  *LiteralP  `parser:"| '@default' '(' @@ ')'"`
	Min      *LiteralP  `parser:"| '@min' '(' @@ ')'"`
	Max      *LiteralP  `parser:"| '@max' '(' @@ ')'"`
	Match    *string    `parser:"| '@match' '(' @String ')'"`
	Choices  []LiteralP `parser:"| '@choices' '(' @@ ( ',' @@ )* ')'"`
}

// LiteralP parses a string, number or boolean literal.
type LiteralP struct {
	Str    *string `parser:"  @String"`
	Number *string `parser:"| @Number"`
	Bool   *string `parser:"| @('true' | 'false')"`
}

var schemaLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `#[^\n]*`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "Annot", Pattern: `@[a-zA-Z]+`},
	{Name: "String", Pattern: `"(?:[^"\\]|\\.)*"`},
	{Name: "Number", Pattern: `-?[0-9]+(?:\.[0-9]+)?`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Punct", Pattern: `[{}\[\]();:,]`},
})

var schemaParser = participle.MustBuild[FileP](
	participle.Lexer(schemaLexer),
	participle.Elide("Comment", "Whitespace"),
	participle.Unquote("String"),
	participle.UseLookahead(2),
)

// --- Entry points ---

// ParseSchema parses schema source into a ParsedSchema.
func ParseSchema(input string) (*ParsedSchema, error) {
	file, err := schemaParser.ParseString("schema.odm", input)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return convertAST(file)
}

// ParseSchemaFile reads and parses the schema file at path.
func ParseSchemaFile(path string) (*ParsedSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return ParseSchema(string(data))
}

// --- AST conversion ---

func convertAST(file *FileP) (*ParsedSchema, error) {
	schema := &ParsedSchema{}
	seen := make(map[string]bool)
	for _, td := range file.Types {
		if seen[td.Name] {
			return nil, fmt.Errorf("parse schema: type %s declared twice", td.Name)
		}
		seen[td.Name] = true
		spec, err := convertType(td)
		if err != nil {
			return nil, err
		}
		schema.Types = append(schema.Types, spec)
	}
	return schema, nil
}

func convertType(td TypeDefP) (TypeSpec, error) {
	spec := TypeSpec{Name: td.Name, Embedded: td.Kind == "embedded"}
	for _, a := range td.Annots {
		if spec.Embedded {
			return spec, fmt.Errorf("parse schema: embedded type %s cannot name a collection", td.Name)
		}
		spec.Collection = a.Collection
	}
	fieldSeen := make(map[string]bool)
	for _, fd := range td.Fields {
		if fieldSeen[fd.Name] {
			return spec, fmt.Errorf("parse schema: %s.%s declared twice", td.Name, fd.Name)
		}
		fieldSeen[fd.Name] = true
		f, err := convertField(fd)
		if err != nil {
			return spec, fmt.Errorf("parse schema: %s.%s: %w", td.Name, fd.Name, err)
		}
		spec.Fields = append(spec.Fields, f)
	}
	return spec, nil
}

func convertField(fd FieldDefP) (FieldSpec, error) {
	f := FieldSpec{Name: fd.Name, TypeName: fd.Type.Name}
	if fd.Type.Elem != "" {
		f.TypeName, f.Array = fd.Type.Elem, true
	}
	var err error
	for _, ann := range fd.Annots {
		switch {
		case ann.Required:
			f.Required = true
		case ann.Unique:
			f.Unique = true
		case ann.Default != nil:
			f.Default, err = ann.Default.value()
		case ann.Min != nil:
			f.Min, err = ann.Min.value()
		case ann.Max != nil:
			f.Max, err = ann.Max.value()
		case ann.Match != nil:
			f.Match = *ann.Match
		case len(ann.Choices) > 0:
			for _, c := range ann.Choices {
				v, cerr := c.value()
				if cerr != nil {
					return f, cerr
				}
				f.Choices = append(f.Choices, v)
			}
		}
		if err != nil {
			return f, err
		}
	}
	return f, nil
}

func (l LiteralP) value() (any, error) {
	switch {
	case l.Str != nil:
		return *l.Str, nil
	case l.Number != nil:
		n, err := strconv.ParseFloat(*l.Number, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", *l.Number, err)
		}
		return n, nil
	case l.Bool != nil:
		return *l.Bool == "true", nil
	}
	return nil, fmt.Errorf("empty literal")
}
