package sink

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// notionPages is the slice of the Notion API this sink uses.
type notionPages interface {
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
}

// NotionSink creates one page per lead in a Notion lead database.
// Calls are throttled to Notion's 3 req/s limit by default.
type NotionSink struct {
	pages   notionPages
	dbID    string
	limiter *rate.Limiter
}

// NotionOption configures the sink.
type NotionOption func(*NotionSink)

// WithNotionRateLimit overrides the default rate limit.
func WithNotionRateLimit(rps float64) NotionOption {
	return func(s *NotionSink) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			s.limiter = nil
		}
	}
}

// withNotionPages substitutes the page API, for tests.
func withNotionPages(p notionPages) NotionOption {
	return func(s *NotionSink) {
		s.pages = p
	}
}

// NewNotion creates a sink writing to the lead database identified by dbID.
func NewNotion(token, dbID string, opts ...NotionOption) *NotionSink {
	s := &NotionSink{
		pages:   notionapi.NewClient(notionapi.Token(token)).Page,
		dbID:    dbID,
		limiter: rate.NewLimiter(3, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *NotionSink) Name() string { return "notion" }

func (s *NotionSink) Send(ctx context.Context, lead model.Lead) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "notion: rate limit")
		}
	}

	title := lead.Address
	if title == "" {
		title = lead.Email
	}
	if title == "" {
		title = lead.ID
	}

	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
		},
		"Lead ID": richText(lead.ID),
		"Stage": notionapi.SelectProperty{
			Select: notionapi.Option{Name: string(lead.Stage)},
		},
	}
	if lead.Email != "" {
		props["Email"] = notionapi.EmailProperty{Email: lead.Email}
	}
	if lead.Phone != "" {
		props["Phone"] = notionapi.PhoneNumberProperty{PhoneNumber: lead.Phone}
	}
	if lead.Quote != nil {
		props["Panels"] = notionapi.NumberProperty{Number: float64(lead.Quote.Panels)}
		props["Trench USD"] = notionapi.NumberProperty{Number: float64(lead.Quote.Trench.CostUSD)}
	}

	_, err := s.pages.Create(ctx, &notionapi.PageCreateRequest{
		Parent:     notionapi.Parent{Type: notionapi.ParentTypeDatabaseID, DatabaseID: notionapi.DatabaseID(s.dbID)},
		Properties: props,
	})
	if err != nil {
		return eris.Wrapf(err, "notion: create lead page %s", lead.ID)
	}
	return nil
}

func richText(s string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		RichText: []notionapi.RichText{{Text: &notionapi.Text{Content: s}}},
	}
}
