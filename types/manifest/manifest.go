// Package manifest abstracts the supported IIIF Presentation manifest versions.
// Supported versions are Presentation API 2 and 3.
package manifest

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
	"github.com/iiif-archive/iiifarchive/types"
)

const (
	// ContextV2 is the Presentation API 2 JSON-LD context
	ContextV2 = "http://iiif.io/api/presentation/2/context.json"
	// ContextV3 is the Presentation API 3 JSON-LD context
	ContextV3 = "http://iiif.io/api/presentation/3/context.json"
)

// Version identifies the Presentation API version of a manifest
type Version int

const (
	// VersionUnknown is the zero value
	VersionUnknown Version = iota
	// Version2 is Presentation API 2.x
	Version2
	// Version3 is Presentation API 3.x
	Version3
)

func (v Version) String() string {
	switch v {
	case Version2:
		return "2"
	case Version3:
		return "3"
	}
	return "unknown"
}

// Manifest is implemented by each supported presentation version.
// The manifest owns the decoded document, containers are views into it.
type Manifest interface {
	GetID() string
	SetID(string) error
	GetLabel() string
	Version() Version
	// Containers returns the canvases in document order.
	// Each call returns a new slice.
	Containers() ([]Container, error)
	MarshalJSON() ([]byte, error)
	MarshalPretty() ([]byte, error)
}

// Container is a single canvas, referencing either a direct asset or an image service
type Container interface {
	GetID() string
	GetLabel() string
	// GetURL returns the asset URL when downloadable, otherwise the image service id
	GetURL() (string, error)
	SetURL(string) error
	// Filename is the last path segment of the URL
	Filename() (string, error)
	// IsDownloadable is true when the asset body has no service
	IsDownloadable() (bool, error)
}

type common struct {
	doc jsondoc.Doc
}

// Parse decodes a manifest and selects the implementation from the @context
func Parse(raw []byte) (Manifest, error) {
	doc, err := jsondoc.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	contexts := jsondoc.Contexts(doc)
	switch {
	case slices.Contains(contexts, ContextV2):
		return &v2Manifest{common: common{doc: doc}}, nil
	case slices.Contains(contexts, ContextV3):
		return &v3Manifest{common: common{doc: doc}}, nil
	}
	return nil, fmt.Errorf("manifest context %v: %w", doc["@context"], types.ErrUnsupportedSchema)
}

func (m *common) GetLabel() string {
	return jsondoc.Label(m.doc["label"])
}

func (m *common) MarshalJSON() ([]byte, error) {
	return jsondoc.Marshal(m.doc)
}

func (m *common) MarshalPretty() ([]byte, error) {
	return jsondoc.MarshalPretty(m.doc)
}

// service returns the image service object of an asset body, and the key holding its id.
// Presentation 3 manifests may link to Image API 2 services which use "@id".
func service(body jsondoc.Doc) (jsondoc.Doc, string, error) {
	svc := jsondoc.Object(body["service"])
	if svc == nil {
		return nil, "", fmt.Errorf("service is not an object: %w", types.ErrNotFound)
	}
	if _, ok := svc["@id"]; ok {
		return svc, "@id", nil
	}
	return svc, "id", nil
}

func hasService(body jsondoc.Doc) bool {
	_, ok := body["service"]
	return ok
}

// bodyURL returns the asset or service id of body
func bodyURL(body jsondoc.Doc, idKey string) (string, error) {
	if !hasService(body) {
		return jsondoc.String(body, idKey), nil
	}
	svc, key, err := service(body)
	if err != nil {
		return "", err
	}
	return jsondoc.String(svc, key), nil
}

func setBodyURL(body jsondoc.Doc, idKey, value string) error {
	if !hasService(body) {
		body[idKey] = value
		return nil
	}
	svc, key, err := service(body)
	if err != nil {
		return err
	}
	svc[key] = value
	return nil
}

func filename(u string) string {
	if pu, err := url.Parse(u); err == nil && pu.Path != "" {
		u = pu.Path
	}
	u = strings.TrimRight(u, "/")
	return path.Base(u)
}
