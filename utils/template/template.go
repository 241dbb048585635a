// Package template renders the %-format strings used in table options:
//
//	%%           a literal %
//	%Y, %m, ...  a strftime field of the context time
//	%{expr}      hostname, time, tag, json, record(field) or last_value(column)
package template

import (
	"fmt"
	"strings"
	"time"

	"github.com/datazip-inc/sqlstream/constants"
	"github.com/datazip-inc/sqlstream/types"
	"github.com/goccy/go-json"
	"github.com/ncruces/go-strftime"
)

// time fields available as %X
const timeFields = "YCymBbhdejHkilPpMSLNzZAauUWGgVsntcDFvxXrRT"

// Context is what a template is rendered against.
type Context struct {
	Time     time.Time
	Hostname string
	Tag      string
	Record   types.Row
	// LastValues holds the last delivered value per column
	LastValues types.Row
}

type part interface {
	render(ctx *Context) (string, error)
}

type literal string

func (l literal) render(_ *Context) (string, error) {
	return string(l), nil
}

type timeField byte

func (f timeField) render(ctx *Context) (string, error) {
	return strftime.Format("%"+string(f), contextTime(ctx)), nil
}

type call struct {
	name string
	arg  string
}

func (c call) render(ctx *Context) (string, error) {
	switch c.name {
	case "hostname":
		return ctx.Hostname, nil
	case "time":
		return contextTime(ctx).Format(time.RFC3339), nil
	case "tag":
		return ctx.Tag, nil
	case "json":
		data, err := json.Marshal(ctx.Record)
		if err != nil {
			return "", fmt.Errorf("failed to encode record: %s", err)
		}
		return string(data), nil
	case "record":
		return lookup(ctx.Record, c.arg), nil
	case "last_value":
		return lookup(ctx.LastValues, c.arg), nil
	}
	return "", fmt.Errorf("unknown template function %q", c.name)
}

// zero-arg and one-arg functions
var functions = map[string]bool{
	"hostname":   false,
	"time":       false,
	"tag":        false,
	"json":       false,
	"record":     true,
	"last_value": true,
}

func lookup(row types.Row, column string) string {
	value, found := row[column]
	if !found || value.IsNull() {
		return ""
	}
	if value.Kind() == types.KindTimestamp {
		return value.Timestamp().UTC().Format("2006-01-02 15:04:05.999999999")
	}
	return value.String()
}

func contextTime(ctx *Context) time.Time {
	if ctx.Time.IsZero() {
		return time.Now()
	}
	return ctx.Time
}

// Template is a compiled format string.
type Template struct {
	source string
	parts  []part
}

// Compile parses s. Malformed input is a configuration error.
func Compile(s string) (*Template, error) {
	tmpl := &Template{source: s}
	invalid := func(reason string) error {
		return fmt.Errorf("%w: invalid format string %q: %s", constants.ErrConfiguration, s, reason)
	}

	var text strings.Builder
	flush := func() {
		if text.Len() > 0 {
			tmpl.parts = append(tmpl.parts, literal(text.String()))
			text.Reset()
		}
	}

	for pos := 0; pos < len(s); {
		if s[pos] != '%' {
			text.WriteByte(s[pos])
			pos++
			continue
		}
		if pos+1 >= len(s) {
			return nil, invalid("dangling %")
		}

		next := s[pos+1]
		switch {
		case next == '%':
			text.WriteByte('%')
			pos += 2
		case next == '{':
			end, err := closingBrace(s, pos+1)
			if err != nil {
				return nil, invalid(err.Error())
			}
			expr, err := parseCall(s[pos+2 : end])
			if err != nil {
				return nil, invalid(err.Error())
			}
			flush()
			tmpl.parts = append(tmpl.parts, expr)
			pos = end + 1
		case isWordByte(next):
			if !strings.ContainsRune(timeFields, rune(next)) {
				return nil, invalid(fmt.Sprintf("unknown field %%%c", next))
			}
			flush()
			tmpl.parts = append(tmpl.parts, timeField(next))
			pos += 2
		default:
			return nil, invalid(fmt.Sprintf("unexpected %%%c", next))
		}
	}
	flush()

	return tmpl, nil
}

// MustCompile is Compile for templates known at build time.
func MustCompile(s string) *Template {
	tmpl, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return tmpl
}

// closingBrace returns the index of the brace closing the one at open.
func closingBrace(s string, open int) (int, error) {
	depth := 0
	for idx := open; idx < len(s); idx++ {
		switch s[idx] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return idx, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated %%{")
}

// parseCall accepts name, name(arg) and name:arg.
func parseCall(expr string) (call, error) {
	expr = strings.TrimSpace(expr)
	name, arg := expr, ""
	hasArg := false

	if open := strings.IndexByte(expr, '('); open >= 0 {
		if !strings.HasSuffix(expr, ")") {
			return call{}, fmt.Errorf("unbalanced parenthesis in %q", expr)
		}
		name, arg, hasArg = expr[:open], expr[open+1:len(expr)-1], true
	} else if colon := strings.IndexByte(expr, ':'); colon >= 0 {
		name, arg, hasArg = expr[:colon], expr[colon+1:], true
	}
	name = strings.TrimSpace(name)
	arg = strings.Trim(strings.TrimSpace(arg), `"'`)

	takesArg, known := functions[name]
	switch {
	case !known:
		return call{}, fmt.Errorf("unknown function %q", name)
	case takesArg && arg == "":
		return call{}, fmt.Errorf("%s requires an argument", name)
	case !takesArg && hasArg:
		return call{}, fmt.Errorf("%s takes no argument", name)
	}
	return call{name: name, arg: arg}, nil
}

func isWordByte(c byte) bool {
	return c == '_' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Render evaluates the template against ctx.
func (t *Template) Render(ctx Context) (string, error) {
	var out strings.Builder
	for _, p := range t.parts {
		text, err := p.render(&ctx)
		if err != nil {
			return "", fmt.Errorf("failed to render %q: %s", t.source, err)
		}
		out.WriteString(text)
	}
	return out.String(), nil
}

func (t *Template) String() string {
	return t.source
}
