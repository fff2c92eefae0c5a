package imageservice

import (
	"strings"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
)

type v2Service struct {
	common
}

func (s *v2Service) GetID() string {
	return jsondoc.String(s.doc, "@id")
}

func (s *v2Service) SetID(id string) error {
	s.doc["@id"] = id
	return nil
}

func (s *v2Service) Version() Version {
	return Version2
}

// IsLevel0 matches the compliance level URI, e.g. http://iiif.io/api/image/2/level0.json
func (s *v2Service) IsLevel0() bool {
	for _, p := range s.profiles() {
		if strings.HasSuffix(p, "level0.json") {
			return true
		}
	}
	return false
}

// RequestPath encodes the size as "w," leaving the height to the aspect ratio
func (s *v2Service) RequestPath(r Request) string {
	return requestPath(r, itoa(r.Width)+",")
}

func (s *v2Service) RequestURL(r Request) string {
	return requestURL(s.GetID(), s.RequestPath(r))
}
