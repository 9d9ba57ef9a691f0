package wikipedia

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("no article found")

type Interface interface {
	// Summary returns the first sentences of the best matching article.
	Summary(ctx context.Context, topic string, sentences int) (string, error)
}
