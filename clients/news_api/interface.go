package news_api

import "context"

type Interface interface {
	// TopHeadlines returns up to limit headline titles for the country.
	TopHeadlines(ctx context.Context, country string, limit int) ([]string, error)
}
