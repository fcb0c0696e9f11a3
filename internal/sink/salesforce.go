package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/solterra-energy/quote-cli/internal/model"
)

// sfInserter is the slice of go-salesforce this sink uses.
type sfInserter interface {
	InsertOne(sObjectName string, record any) (salesforce.SalesforceResult, error)
}

// SalesforceSink inserts captured leads as Salesforce Lead records.
//
// NOTE: go-salesforce/v3 does not accept context.Context, so ctx only
// governs the rate limiter wait.
type SalesforceSink struct {
	sf      sfInserter
	limiter *rate.Limiter
}

// SalesforceOption configures the sink.
type SalesforceOption func(*SalesforceSink)

// WithSalesforceRateLimit sets a per-second API call limit.
func WithSalesforceRateLimit(rps float64) SalesforceOption {
	return func(s *SalesforceSink) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// NewSalesforce creates a sink over an authenticated go-salesforce instance.
func NewSalesforce(sf *salesforce.Salesforce, opts ...SalesforceOption) *SalesforceSink {
	s := &SalesforceSink{sf: sf}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SalesforceSink) Name() string { return "salesforce" }

func (s *SalesforceSink) Send(ctx context.Context, lead model.Lead) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}

	record := map[string]any{
		"LastName":         lastNameFor(lead),
		"Company":          "Self (Residential)",
		"LeadSource":       "Website Quote Tool",
		"Quote_Lead_ID__c": lead.ID,
	}
	if lead.Email != "" {
		record["Email"] = lead.Email
	}
	if lead.Phone != "" {
		record["Phone"] = lead.Phone
	}
	if lead.Address != "" {
		record["Street"] = lead.Address
	}
	if lead.Quote != nil {
		record["Description"] = fmt.Sprintf("%d panels (%.1f kW), trench %d ft ($%d)",
			lead.Quote.Panels, lead.Quote.SystemKW,
			lead.Quote.Trench.DistanceFeet, lead.Quote.Trench.CostUSD)
	}

	result, err := s.sf.InsertOne("Lead", record)
	if err != nil {
		return eris.Wrapf(err, "sf: insert lead %s", lead.ID)
	}
	if !result.Success {
		return eris.Errorf("sf: insert lead %s failed: %v", lead.ID, result.Errors)
	}
	return nil
}

// lastNameFor derives the required Salesforce LastName from whatever contact
// detail the lead carries.
func lastNameFor(lead model.Lead) string {
	if lead.Email != "" {
		if at := strings.Index(lead.Email, "@"); at > 0 {
			return lead.Email[:at]
		}
		return lead.Email
	}
	if lead.Phone != "" {
		return lead.Phone
	}
	return "Web Lead " + lead.ID
}
