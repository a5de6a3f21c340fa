package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Media is either a VideoMedia or a PhotoSet.
type Media interface {
	Kind() string
}

type VideoMedia struct {
	URL       string        `json:"url"`
	Duration  time.Duration `json:"duration"`
	Thumbnail string        `json:"thumbnail,omitempty"`
}

func (VideoMedia) Kind() string { return "video" }

type PhotoSet struct {
	ImageURLs []string `json:"images"`
}

func (PhotoSet) Kind() string { return "photo" }

type mediaEnvelope struct {
	Type      string        `json:"type"`
	URL       string        `json:"url,omitempty"`
	Duration  time.Duration `json:"duration,omitempty"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Images    []string      `json:"images,omitempty"`
}

// postAlias drops the methods of Post so encoding/json does not recurse.
type postAlias Post

type postJSON struct {
	postAlias
	Media *mediaEnvelope `json:"media"`
}

func (p Post) MarshalJSON() ([]byte, error) {
	out := postJSON{postAlias: postAlias(p)}
	switch m := p.Media.(type) {
	case VideoMedia:
		out.Media = &mediaEnvelope{Type: m.Kind(), URL: m.URL, Duration: m.Duration, Thumbnail: m.Thumbnail}
	case PhotoSet:
		out.Media = &mediaEnvelope{Type: m.Kind(), Images: m.ImageURLs}
	case nil:
	default:
		return nil, fmt.Errorf("unknown media kind %q", m.Kind())
	}
	return json.Marshal(out)
}

func (p *Post) UnmarshalJSON(b []byte) error {
	var in postJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	*p = Post(in.postAlias)
	p.Media = nil
	if in.Media == nil {
		return nil
	}
	switch in.Media.Type {
	case "video":
		p.Media = VideoMedia{URL: in.Media.URL, Duration: in.Media.Duration, Thumbnail: in.Media.Thumbnail}
	case "photo":
		p.Media = PhotoSet{ImageURLs: in.Media.Images}
	default:
		// Older payloads carry no discriminator; decide from the fields present.
		if in.Media.URL != "" {
			p.Media = VideoMedia{URL: in.Media.URL, Duration: in.Media.Duration, Thumbnail: in.Media.Thumbnail}
		} else if len(in.Media.Images) > 0 {
			p.Media = PhotoSet{ImageURLs: in.Media.Images}
		}
	}
	return nil
}
