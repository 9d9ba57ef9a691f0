package command_router

type Kind int

const (
	KindUnrecognized Kind = iota
	KindOpenSite
	KindPlayMedia
	KindFetchNews
	KindKnowledgeQuery
	KindGeneralQuery
)

func (k Kind) String() string {
	switch k {
	case KindOpenSite:
		return "open_site"
	case KindPlayMedia:
		return "play_media"
	case KindFetchNews:
		return "fetch_news"
	case KindKnowledgeQuery:
		return "knowledge_query"
	case KindGeneralQuery:
		return "general_query"
	default:
		return "unrecognized"
	}
}

// Intent is the action derived from one transcript. Payload holds the site
// name, media query, knowledge topic or general query text depending on Kind.
// Text is the normalized transcript the intent was derived from.
type Intent struct {
	Kind    Kind
	Payload string
	Text    string
}

// Interface classifies transcripts. Route is a pure function of its input and
// safe for concurrent use.
type Interface interface {
	Route(text string) Intent
}
