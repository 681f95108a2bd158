package graphql

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/graphql-go/graphql"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
)

var builtinScalars = map[string]bool{
	"String": true, "Int": true, "Float": true, "Boolean": true, "ID": true,
}

// SDL renders the named schema in the schema definition language
func (m *Manager) SDL(ctx context.Context, name string) (string, error) {
	s, err := m.Schema(ctx, name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	PrintSDL(&buf, s)
	return buf.String(), nil
}

// PrintSDL writes the user defined types of a schema sorted by name. Fields
// are sorted too since graphql-go does not keep declaration order.
func PrintSDL(w io.Writer, s *graphql.Schema) {
	types := s.TypeMap()
	doc := &ast.SchemaDocument{}
	for _, name := range sortedKeys(types) {
		if strings.HasPrefix(name, "__") || builtinScalars[name] {
			continue
		}
		if def := sdlDefinition(types[name]); def != nil {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
	formatter.NewFormatter(w).FormatSchemaDocument(doc)
}

func sdlDefinition(typ graphql.Type) *ast.Definition {
	switch t := typ.(type) {
	case *graphql.Object:
		def := &ast.Definition{Kind: ast.Object, Name: t.Name(), Description: t.Description()}
		fields := t.Fields()
		for _, name := range sortedKeys(fields) {
			def.Fields = append(def.Fields, sdlField(fields[name]))
		}
		for _, iface := range t.Interfaces() {
			def.Interfaces = append(def.Interfaces, iface.Name())
		}
		return def
	case *graphql.Interface:
		def := &ast.Definition{Kind: ast.Interface, Name: t.Name(), Description: t.Description()}
		fields := t.Fields()
		for _, name := range sortedKeys(fields) {
			def.Fields = append(def.Fields, sdlField(fields[name]))
		}
		return def
	case *graphql.InputObject:
		def := &ast.Definition{Kind: ast.InputObject, Name: t.Name(), Description: t.Description()}
		fields := t.Fields()
		for _, name := range sortedKeys(fields) {
			f := fields[name]
			def.Fields = append(def.Fields, &ast.FieldDefinition{
				Name:        f.Name(),
				Description: f.Description(),
				Type:        sdlType(f.Type),
			})
		}
		return def
	case *graphql.Union:
		def := &ast.Definition{Kind: ast.Union, Name: t.Name(), Description: t.Description()}
		for _, member := range t.Types() {
			def.Types = append(def.Types, member.Name())
		}
		return def
	case *graphql.Enum:
		def := &ast.Definition{Kind: ast.Enum, Name: t.Name(), Description: t.Description()}
		for _, v := range t.Values() {
			def.EnumValues = append(def.EnumValues, &ast.EnumValueDefinition{Name: v.Name, Description: v.Description})
		}
		return def
	case *graphql.Scalar:
		return &ast.Definition{Kind: ast.Scalar, Name: t.Name(), Description: t.Description()}
	}
	return nil
}

func sdlField(f *graphql.FieldDefinition) *ast.FieldDefinition {
	out := &ast.FieldDefinition{
		Name:        f.Name,
		Description: f.Description,
		Type:        sdlType(f.Type),
	}
	for _, arg := range f.Args {
		out.Arguments = append(out.Arguments, &ast.ArgumentDefinition{
			Name:        arg.Name(),
			Description: arg.Description(),
			Type:        sdlType(arg.Type),
		})
	}
	return out
}

func sdlType(typ graphql.Type) *ast.Type {
	switch t := typ.(type) {
	case *graphql.NonNull:
		inner := sdlType(t.OfType)
		inner.NonNull = true
		return inner
	case *graphql.List:
		return ast.ListType(sdlType(t.OfType), nil)
	}
	return ast.NamedType(typ.Name(), nil)
}
