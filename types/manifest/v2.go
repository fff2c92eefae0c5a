package manifest

import (
	"fmt"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
	"github.com/iiif-archive/iiifarchive/types"
)

type v2Manifest struct {
	common
}

// canvas2 points at sequences[seq].canvases[idx] of the owning manifest
type canvas2 struct {
	m   *common
	seq int
	idx int
}

func (m *v2Manifest) GetID() string {
	return jsondoc.String(m.doc, "@id")
}

func (m *v2Manifest) SetID(id string) error {
	m.doc["@id"] = id
	return nil
}

func (m *v2Manifest) Version() Version {
	return Version2
}

func (m *v2Manifest) Containers() ([]Container, error) {
	cl := []Container{}
	for si, seq := range jsondoc.Array(m.doc["sequences"]) {
		s, ok := seq.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("sequence %d is not an object: %w", si, types.ErrNotFound)
		}
		for ci := range jsondoc.Array(s["canvases"]) {
			cl = append(cl, &canvas2{m: &m.common, seq: si, idx: ci})
		}
	}
	return cl, nil
}

func (c *canvas2) data() jsondoc.Doc {
	seq := jsondoc.Array(c.m.doc["sequences"])
	if c.seq >= len(seq) {
		return nil
	}
	canvases := jsondoc.Array(jsondoc.Object(seq[c.seq])["canvases"])
	if c.idx >= len(canvases) {
		return nil
	}
	d, _ := canvases[c.idx].(map[string]interface{})
	return d
}

// resource returns images[0].resource, failing on composite images
func (c *canvas2) resource() (jsondoc.Doc, error) {
	d := c.data()
	if d == nil {
		return nil, fmt.Errorf("canvas %d/%d: %w", c.seq, c.idx, types.ErrNotFound)
	}
	images := jsondoc.Array(d["images"])
	if len(images) > 1 {
		return nil, fmt.Errorf("canvas %s has %d images: %w", c.GetID(), len(images), types.ErrUnsupportedCompositeAsset)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("canvas %s has no images: %w", c.GetID(), types.ErrNotFound)
	}
	res := jsondoc.Object(jsondoc.Object(images[0])["resource"])
	if res == nil {
		return nil, fmt.Errorf("canvas %s image has no resource: %w", c.GetID(), types.ErrNotFound)
	}
	return res, nil
}

func (c *canvas2) GetID() string {
	return jsondoc.String(c.data(), "@id")
}

func (c *canvas2) GetLabel() string {
	d := c.data()
	if d == nil {
		return ""
	}
	return jsondoc.Label(d["label"])
}

func (c *canvas2) IsDownloadable() (bool, error) {
	res, err := c.resource()
	if err != nil {
		return false, err
	}
	return !hasService(res), nil
}

func (c *canvas2) GetURL() (string, error) {
	res, err := c.resource()
	if err != nil {
		return "", err
	}
	return bodyURL(res, "@id")
}

func (c *canvas2) SetURL(u string) error {
	res, err := c.resource()
	if err != nil {
		return err
	}
	return setBodyURL(res, "@id", u)
}

func (c *canvas2) Filename() (string, error) {
	u, err := c.GetURL()
	if err != nil {
		return "", err
	}
	return filename(u), nil
}
