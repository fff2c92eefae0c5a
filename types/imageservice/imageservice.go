// Package imageservice parses IIIF Image API info.json descriptors and plans the tile requests needed to mirror them.
// Supported versions are Image API 2 and 3.
package imageservice

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
	"github.com/iiif-archive/iiifarchive/types"
)

const (
	// ContextV2 is the Image API 2 JSON-LD context
	ContextV2 = "http://iiif.io/api/image/2/context.json"
	// ContextV3 is the Image API 3 JSON-LD context
	ContextV3 = "http://iiif.io/api/image/3/context.json"
	// InfoFile is the descriptor filename appended to a service id
	InfoFile = "info.json"
)

// Version identifies the Image API version of a descriptor
type Version int

const (
	// VersionUnknown is the zero value
	VersionUnknown Version = iota
	// Version2 is Image API 2.x
	Version2
	// Version3 is Image API 3.x
	Version3
)

// String returns the Image API major version number
func (v Version) String() string {
	switch v {
	case Version2:
		return "2"
	case Version3:
		return "3"
	}
	return "unknown"
}

// TileSpec is the first tiles entry of a descriptor
type TileSpec struct {
	Width        int   `json:"width" yaml:"width"`
	Height       int   `json:"height" yaml:"height"`
	ScaleFactors []int `json:"scaleFactors" yaml:"scaleFactors"`
}

// Service is implemented by each supported Image API version
type Service interface {
	GetID() string
	SetID(string) error
	Version() Version
	Width() int
	Height() int
	// Tiles returns false when the descriptor declares no tiles
	Tiles() (TileSpec, bool)
	// IsLevel0 reports a service restricted to whole image or declared tile requests
	IsLevel0() bool
	// RequestPath is the request relative to the service id, also used as the local path
	RequestPath(Request) string
	RequestURL(Request) string
	MarshalJSON() ([]byte, error)
	MarshalPretty() ([]byte, error)
}

type common struct {
	doc    jsondoc.Doc
	width  int
	height int
	tiles  *TileSpec
}

// Parse decodes a descriptor and selects the implementation from the @context
func Parse(raw []byte) (Service, error) {
	doc, err := jsondoc.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image service: %w", err)
	}
	contexts := jsondoc.Contexts(doc)
	var s Service
	switch {
	case slices.Contains(contexts, ContextV2):
		v2 := &v2Service{common: common{doc: doc}}
		err = v2.common.load()
		s = v2
	case slices.Contains(contexts, ContextV3):
		v3 := &v3Service{common: common{doc: doc}}
		err = v3.common.load()
		s = v3
	default:
		return nil, fmt.Errorf("image service context %v: %w", doc["@context"], types.ErrUnsupportedSchema)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// load validates dimensions and the tile declaration
func (c *common) load() error {
	var ok bool
	c.width, ok = jsondoc.Int(c.doc, "width")
	if !ok || c.width <= 0 {
		return fmt.Errorf("width %v: %w", c.doc["width"], types.ErrInvalidDescriptor)
	}
	c.height, ok = jsondoc.Int(c.doc, "height")
	if !ok || c.height <= 0 {
		return fmt.Errorf("height %v: %w", c.doc["height"], types.ErrInvalidDescriptor)
	}
	tiles := jsondoc.Object(c.doc["tiles"])
	if tiles == nil {
		return nil
	}
	ts := TileSpec{}
	ts.Width, ok = jsondoc.Int(tiles, "width")
	if !ok || ts.Width <= 0 {
		return fmt.Errorf("tile width %v: %w", tiles["width"], types.ErrInvalidDescriptor)
	}
	ts.Height, ok = jsondoc.Int(tiles, "height")
	if !ok {
		ts.Height = ts.Width
	} else if ts.Height <= 0 {
		return fmt.Errorf("tile height %v: %w", tiles["height"], types.ErrInvalidDescriptor)
	}
	ts.ScaleFactors = jsondoc.Ints(tiles["scaleFactors"])
	if len(ts.ScaleFactors) == 0 {
		ts.ScaleFactors = []int{1}
	}
	for _, s := range ts.ScaleFactors {
		if s <= 0 {
			return fmt.Errorf("scale factor %d: %w", s, types.ErrInvalidDescriptor)
		}
	}
	c.tiles = &ts
	return nil
}

func (c *common) Width() int {
	return c.width
}

func (c *common) Height() int {
	return c.height
}

func (c *common) Tiles() (TileSpec, bool) {
	if c.tiles == nil {
		return TileSpec{}, false
	}
	ts := *c.tiles
	ts.ScaleFactors = slices.Clone(c.tiles.ScaleFactors)
	return ts, true
}

func (c *common) MarshalJSON() ([]byte, error) {
	return jsondoc.Marshal(c.doc)
}

func (c *common) MarshalPretty() ([]byte, error) {
	return jsondoc.MarshalPretty(c.doc)
}

// profiles returns the string entries of the profile field
func (c *common) profiles() []string {
	out := []string{}
	for _, p := range jsondoc.Array(c.doc["profile"]) {
		if s, ok := p.(string); ok {
			out = append(out, s)
		}
	}
	if s, ok := c.doc["profile"].(string); ok {
		out = append(out, s)
	}
	return out
}

func requestPath(r Request, size string) string {
	return r.Region.String() + "/" + size + "/0/default.jpg"
}

func requestURL(id, p string) string {
	return strings.TrimRight(id, "/") + "/" + p
}

func itoa(i int) string {
	return strconv.Itoa(i)
}
