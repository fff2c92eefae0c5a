// Package template wraps a common set of templates around text/template
package template

import (
	"io"
	"os"
	"reflect"
	"strings"
	gotemplate "text/template"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v2"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
)

var tmplFuncs = gotemplate.FuncMap{
	"default": func(def, orig interface{}) interface{} {
		if orig == nil || orig == reflect.Zero(reflect.TypeOf(orig)).Interface() {
			return def
		}
		return orig
	},
	"env": os.Getenv,
	"humanBytes": func(v interface{}) string {
		switch n := v.(type) {
		case int:
			return humanize.Bytes(uint64(max(n, 0)))
		case int64:
			return humanize.Bytes(uint64(max(n, 0)))
		case uint64:
			return humanize.Bytes(n)
		}
		return ""
	},
	"join": strings.Join,
	"json": func(v interface{}) string {
		b, _ := jsondoc.Marshal(v)
		return string(b)
	},
	"jsonPretty": func(v interface{}) string {
		b, _ := jsondoc.MarshalPretty(v)
		return string(b)
	},
	"lower":       strings.ToLower,
	"printPretty": printPretty,
	"split":       strings.Split,
	"upper":       strings.ToUpper,
	"yaml": func(v interface{}) string {
		b, err := yaml.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	},
}

type prettyPrinter interface {
	MarshalPretty() ([]byte, error)
}

// printPretty prefers the value's own MarshalPretty, e.g. a manifest or a config,
// others are encoded the way saved documents are
func printPretty(v interface{}) string {
	var b []byte
	var err error
	if pp, ok := v.(prettyPrinter); ok {
		b, err = pp.MarshalPretty()
	} else {
		b, err = jsondoc.MarshalPretty(v)
	}
	if err != nil {
		return ""
	}
	return string(b)
}

// Named formats accepted in place of a template
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Opt allows options to be passed to templating functions
type Opt func(*gotemplate.Template) (*gotemplate.Template, error)

// Writer outputs a template to an io.Writer.
// The names "json" and "yaml" are shorthand for the matching encoding of data.
func Writer(out io.Writer, tmpl string, data interface{}, opts ...Opt) error {
	switch tmpl {
	case FormatJSON:
		tmpl = "{{jsonPretty .}}"
	case FormatYAML:
		tmpl = "{{yaml .}}"
	}
	var err error
	t := gotemplate.New("out").Funcs(tmplFuncs)
	for _, opt := range opts {
		t, err = opt(t)
		if err != nil {
			return err
		}
	}
	t, err = t.Parse(tmpl)
	if err != nil {
		return err
	}
	return t.Execute(out, data)
}

// String converts a template to a string
func String(tmpl string, data interface{}, opts ...Opt) (string, error) {
	var sb strings.Builder
	err := Writer(&sb, tmpl, data, opts...)
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// WithFuncs includes additional template functions
func WithFuncs(funcs gotemplate.FuncMap) Opt {
	return func(t *gotemplate.Template) (*gotemplate.Template, error) {
		return t.Funcs(funcs), nil
	}
}
