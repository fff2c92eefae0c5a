package manifest

import (
	"fmt"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
	"github.com/iiif-archive/iiifarchive/types"
)

type v3Manifest struct {
	common
}

// canvas3 points at items[idx] of the owning manifest
type canvas3 struct {
	m   *common
	idx int
}

func (m *v3Manifest) GetID() string {
	return jsondoc.String(m.doc, "id")
}

func (m *v3Manifest) SetID(id string) error {
	m.doc["id"] = id
	return nil
}

func (m *v3Manifest) Version() Version {
	return Version3
}

func (m *v3Manifest) Containers() ([]Container, error) {
	cl := []Container{}
	for i := range jsondoc.Array(m.doc["items"]) {
		cl = append(cl, &canvas3{m: &m.common, idx: i})
	}
	return cl, nil
}

func (c *canvas3) data() jsondoc.Doc {
	items := jsondoc.Array(c.m.doc["items"])
	if c.idx >= len(items) {
		return nil
	}
	d, _ := items[c.idx].(map[string]interface{})
	return d
}

// body returns items[0].items[0].body, failing on multiple pages or annotations
func (c *canvas3) body() (jsondoc.Doc, error) {
	d := c.data()
	if d == nil {
		return nil, fmt.Errorf("canvas %d: %w", c.idx, types.ErrNotFound)
	}
	pages := jsondoc.Array(d["items"])
	if len(pages) > 1 {
		return nil, fmt.Errorf("canvas %s has %d annotation pages: %w", c.GetID(), len(pages), types.ErrUnsupportedCompositeAsset)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("canvas %s has no annotation page: %w", c.GetID(), types.ErrNotFound)
	}
	annos := jsondoc.Array(jsondoc.Object(pages[0])["items"])
	if len(annos) > 1 {
		return nil, fmt.Errorf("canvas %s has %d annotations: %w", c.GetID(), len(annos), types.ErrUnsupportedCompositeAsset)
	}
	if len(annos) == 0 {
		return nil, fmt.Errorf("canvas %s has no annotations: %w", c.GetID(), types.ErrNotFound)
	}
	anno := jsondoc.Object(annos[0])
	if bodies := jsondoc.Array(anno["body"]); len(bodies) > 1 {
		return nil, fmt.Errorf("canvas %s annotation has %d bodies: %w", c.GetID(), len(bodies), types.ErrUnsupportedCompositeAsset)
	}
	body := jsondoc.Object(anno["body"])
	if body == nil {
		return nil, fmt.Errorf("canvas %s annotation has no body: %w", c.GetID(), types.ErrNotFound)
	}
	return body, nil
}

func (c *canvas3) GetID() string {
	return jsondoc.String(c.data(), "id")
}

func (c *canvas3) GetLabel() string {
	d := c.data()
	if d == nil {
		return ""
	}
	return jsondoc.Label(d["label"])
}

func (c *canvas3) IsDownloadable() (bool, error) {
	body, err := c.body()
	if err != nil {
		return false, err
	}
	return !hasService(body), nil
}

func (c *canvas3) GetURL() (string, error) {
	body, err := c.body()
	if err != nil {
		return "", err
	}
	return bodyURL(body, "id")
}

func (c *canvas3) SetURL(u string) error {
	body, err := c.body()
	if err != nil {
		return err
	}
	return setBodyURL(body, "id", u)
}

func (c *canvas3) Filename() (string, error) {
	u, err := c.GetURL()
	if err != nil {
		return "", err
	}
	return filename(u), nil
}
