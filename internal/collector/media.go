package collector

import (
	"net/url"
	"path"
	"strings"

	"github.com/qepting91/reelfeed/internal/domain"
)

var (
	videoExt = map[string]bool{".mp4": true, ".webm": true, ".mov": true, ".m3u8": true}
	imageExt = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}
)

// classifyMedia decides the media variant from a link. Anything that is not
// a recognisable video becomes a photo set, possibly empty.
func classifyMedia(link, thumbnail string) domain.Media {
	u, err := url.Parse(link)
	if err != nil || link == "" {
		return photoOrEmpty(thumbnail)
	}
	ext := strings.ToLower(path.Ext(u.Path))
	switch {
	case u.Host == "v.redd.it":
		return domain.VideoMedia{URL: strings.TrimSuffix(link, "/") + "/HLSPlaylist.m3u8", Thumbnail: thumbnail}
	case videoExt[ext]:
		return domain.VideoMedia{URL: link, Thumbnail: thumbnail}
	case imageExt[ext] || u.Host == "i.redd.it":
		return domain.PhotoSet{ImageURLs: []string{link}}
	}
	return photoOrEmpty(thumbnail)
}

func photoOrEmpty(thumbnail string) domain.Media {
	if strings.HasPrefix(thumbnail, "http") {
		return domain.PhotoSet{ImageURLs: []string{thumbnail}}
	}
	return domain.PhotoSet{}
}
