package imageservice

import (
	"strings"

	"github.com/iiif-archive/iiifarchive/internal/jsondoc"
)

type v3Service struct {
	common
}

func (s *v3Service) GetID() string {
	return jsondoc.String(s.doc, "id")
}

func (s *v3Service) SetID(id string) error {
	s.doc["id"] = id
	return nil
}

func (s *v3Service) Version() Version {
	return Version3
}

// IsLevel0 matches the "level0" profile, the level URI form is also accepted
func (s *v3Service) IsLevel0() bool {
	for _, p := range s.profiles() {
		if p == "level0" || strings.HasSuffix(p, "level0.json") {
			return true
		}
	}
	return false
}

func (s *v3Service) RequestPath(r Request) string {
	return requestPath(r, itoa(r.Width)+","+itoa(r.Height))
}

func (s *v3Service) RequestURL(r Request) string {
	return requestURL(s.GetID(), s.RequestPath(r))
}
