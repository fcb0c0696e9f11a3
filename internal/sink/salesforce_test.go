package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solterra-energy/quote-cli/internal/model"
)

type fakeInserter struct {
	records []map[string]any
	result  salesforce.SalesforceResult
	err     error
}

func (f *fakeInserter) InsertOne(sObjectName string, record any) (salesforce.SalesforceResult, error) {
	f.records = append(f.records, record.(map[string]any))
	return f.result, f.err
}

func newTestSalesforceSink(sf *fakeInserter) *SalesforceSink {
	return &SalesforceSink{sf: sf}
}

func TestSalesforceSink_InsertsLead(t *testing.T) {
	sf := &fakeInserter{result: salesforce.SalesforceResult{Success: true, Id: "00Q000000000001"}}
	s := newTestSalesforceSink(sf)

	lead := quotedLead("lead-1")
	lead.Phone = "+12145551234"
	lead.Address = "2404 Mockingbird Ln, Dallas TX"
	require.NoError(t, s.Send(context.Background(), lead))

	require.Len(t, sf.records, 1)
	rec := sf.records[0]
	assert.Equal(t, "ana", rec["LastName"])
	assert.Equal(t, "Self (Residential)", rec["Company"])
	assert.Equal(t, "Website Quote Tool", rec["LeadSource"])
	assert.Equal(t, "lead-1", rec["Quote_Lead_ID__c"])
	assert.Equal(t, "ana@example.com", rec["Email"])
	assert.Equal(t, "+12145551234", rec["Phone"])
	assert.Equal(t, "2404 Mockingbird Ln, Dallas TX", rec["Street"])
	assert.Equal(t, "21 panels (8.4 kW), trench 276 ft ($12420)", rec["Description"])
}

func TestSalesforceSink_OmitsMissingFields(t *testing.T) {
	sf := &fakeInserter{result: salesforce.SalesforceResult{Success: true}}
	s := newTestSalesforceSink(sf)

	lead := model.Lead{ID: "lead-2", Stage: model.StageAddress, Phone: "+12145551234", TS: 1700000000000}
	require.NoError(t, s.Send(context.Background(), lead))

	rec := sf.records[0]
	assert.NotContains(t, rec, "Email")
	assert.NotContains(t, rec, "Street")
	assert.NotContains(t, rec, "Description")
}

func TestSalesforceSink_InsertError(t *testing.T) {
	sf := &fakeInserter{err: errors.New("INVALID_SESSION_ID")}
	s := newTestSalesforceSink(sf)

	err := s.Send(context.Background(), testSinkLead())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: insert lead lead-1")
}

func TestSalesforceSink_UnsuccessfulResult(t *testing.T) {
	sf := &fakeInserter{result: salesforce.SalesforceResult{Success: false}}
	s := newTestSalesforceSink(sf)

	err := s.Send(context.Background(), testSinkLead())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestLastNameFor(t *testing.T) {
	tests := []struct {
		name string
		lead model.Lead
		want string
	}{
		{"email local part", model.Lead{ID: "l1", Email: "ana@example.com"}, "ana"},
		{"malformed email", model.Lead{ID: "l1", Email: "not-an-email"}, "not-an-email"},
		{"phone fallback", model.Lead{ID: "l1", Phone: "+12145551234"}, "+12145551234"},
		{"id fallback", model.Lead{ID: "l1"}, "Web Lead l1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, lastNameFor(tt.lead))
		})
	}
}
