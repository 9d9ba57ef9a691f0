package video_search

import "context"

// Result holds the video ids found on a results page, best first, and the
// page itself for when no id could be extracted.
type Result struct {
	VideoIDs  []string
	SearchURL string
}

type Interface interface {
	Search(ctx context.Context, query string) (Result, error)
}

// WatchURL is the direct play address of a video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id + "&autoplay=1"
}
