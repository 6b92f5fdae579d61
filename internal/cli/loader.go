package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/query"
	"github.com/roach88/relq/internal/queryir"
	"github.com/roach88/relq/internal/store"
)

// LoadError represents an error that occurred while reading command input.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// QueryFile is one query document read from a file.
type QueryFile struct {
	Name string
	Doc  *query.Document
}

// LoadQueries reads the query documents of every path. A file may hold
// several YAML documents separated by "---": they are named file#1, file#2
// and so on, while a single document is named after its file.
func LoadQueries(paths []string) ([]QueryFile, error) {
	var out []QueryFile
	for _, path := range paths {
		docs, err := loadQueryFile(path)
		if err != nil {
			return nil, err
		}
		base := filepath.Base(path)
		for i, doc := range docs {
			name := base
			if len(docs) > 1 {
				name = fmt.Sprintf("%s#%d", base, i+1)
			}
			out = append(out, QueryFile{Name: name, Doc: doc})
		}
	}
	return out, nil
}

func loadQueryFile(path string) ([]*query.Document, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("query file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("reading %s: %v", path, err)}
	}

	var docs []*query.Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc query.Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: %v", path, err)}
		}
		docs = append(docs, &doc)
	}
	if len(docs) == 0 {
		return nil, &LoadError{Code: ErrCodeDecode, Message: fmt.Sprintf("%s: no query documents", path)}
	}
	return docs, nil
}

// ParseParams converts repeated name=value flags to parameter values of
// the kinds the documents declare. The value null is a null parameter.
// String parameters take the text as given; other kinds read it as a YAML
// scalar or flow sequence, so ids=[1,2] is an array.
func ParseParams(flags []string, files []QueryFile) (map[string]any, error) {
	declared := make(map[string]query.ParamSpec)
	for _, f := range files {
		for name, spec := range f.Doc.Params {
			declared[name] = spec
		}
	}

	out := make(map[string]any, len(flags))
	for _, flag := range flags {
		name, raw, ok := strings.Cut(flag, "=")
		if !ok || name == "" {
			return nil, &LoadError{Code: ErrCodeParam, Message: fmt.Sprintf("parameter %q must be name=value", flag)}
		}
		spec, ok := declared[name]
		if !ok {
			return nil, &LoadError{Code: ErrCodeParam, Message: fmt.Sprintf("parameter %q is not declared by any query", name)}
		}
		v, err := parseParam(spec, raw)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeParam, Message: fmt.Sprintf("parameter %q: %v", name, err)}
		}
		out[name] = v
	}
	return out, nil
}

func parseParam(spec query.ParamSpec, raw string) (any, error) {
	if raw == "null" {
		return nil, nil
	}
	if spec.Kind == queryir.KindString {
		return raw, nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, err
	}
	return store.Coerce(spec.Kind, spec.Elem, v)
}

// paramsFor selects the values a document declares.
func paramsFor(doc *query.Document, values map[string]any) map[string]any {
	out := make(map[string]any, len(doc.Params))
	for name := range doc.Params {
		if v, ok := values[name]; ok {
			out[name] = v
		}
	}
	return out
}
