// internal/submit/submit_test.go
//
// Unit-tests for the submission sinks.
//
// Context
// -------
// Covers the wire shape of the JSON POST, status-code handling, the
// simulated delay (including cancellation), the SQL archive sink against
// sqlmock, and Multi's first-error-wins ordering.

package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/knit/internal/lead"
)

var t0 = time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)

func sampleEnvelope() Envelope {
	return Envelope{
		FormData: map[string]any{"name": "Jane Doe", "email": "jane@x.com"},
		Metadata: NewMetadata("demo-request", t0, t0.Add(95*time.Second+400*time.Millisecond)),
	}
}

func TestNewMetadata(t *testing.T) {
	m := NewMetadata("f", t0, t0.Add(95*time.Second+400*time.Millisecond))
	assert.Equal(t, int64(95), m.TimeToSubmit)
	assert.Equal(t, "2026-03-14T15:01:35.400Z", m.SubmissionTime)

	assert.Equal(t, int64(0), NewMetadata("f", time.Time{}, t0).TimeToSubmit)
	assert.Equal(t, int64(0), NewMetadata("f", t0, t0.Add(-time.Second)).TimeToSubmit)
}

func TestEnvelopeJSON(t *testing.T) {
	raw, err := json.Marshal(sampleEnvelope())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Contains(t, m, "formData")
	assert.NotContains(t, m, "crmData", "nil lead is omitted")

	meta := m["metadata"].(map[string]any)
	assert.Equal(t, "demo-request", meta["formName"])
	assert.EqualValues(t, 95, meta["timeToSubmit"])

	env := sampleEnvelope()
	env.CRMData = &lead.GeneralInquiryLead{Base: lead.Base{FormType: lead.FormGeneralInquiry}}
	raw, err = json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"crmData":{"formType":"general_inquiry"`)
}

func TestHTTP_Success(t *testing.T) {
	var got Envelope
	var ctype, custom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		ctype = r.Header.Get("Content-Type")
		custom = r.Header.Get("X-Knit-Form")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := &HTTP{URL: srv.URL, Headers: map[string]string{"X-Knit-Form": "demo"}}
	require.NoError(t, sink.Submit(context.Background(), sampleEnvelope()))

	assert.Equal(t, "application/json", ctype)
	assert.Equal(t, "demo", custom)
	assert.Equal(t, "Jane Doe", got.FormData["name"])
	assert.Equal(t, "demo-request", got.Metadata.FormName)
}

func TestHTTP_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := (&HTTP{URL: srv.URL}).Submit(context.Background(), sampleEnvelope())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.StatusCode)
}

func TestHTTP_NoURL(t *testing.T) {
	assert.Error(t, (&HTTP{}).Submit(context.Background(), sampleEnvelope()))
}

func TestSimulated(t *testing.T) {
	start := time.Now()
	require.NoError(t, Simulated{Delay: 20 * time.Millisecond}.Submit(context.Background(), Envelope{}))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Simulated{}.Submit(ctx, Envelope{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO form_submission \(form_id, submitted_at, data\) VALUES \(\?, \?, \?\)`).
		WithArgs("demo-request", t0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink := &Store{DB: sqlx.NewDb(db, "sqlmock"), Now: func() time.Time { return t0 }}
	require.NoError(t, sink.Submit(context.Background(), sampleEnvelope()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Errors(t *testing.T) {
	assert.Error(t, (&Store{}).Submit(context.Background(), sampleEnvelope()))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	bad := &Store{DB: sqlx.NewDb(db, "sqlmock"), Table: "x; DROP TABLE y"}
	assert.Error(t, bad.Submit(context.Background(), sampleEnvelope()))

	mock.ExpectExec(`INSERT INTO leads_archive`).WillReturnError(errors.New("boom"))
	s := &Store{DB: sqlx.NewDb(db, "sqlmock"), Table: "leads_archive", FormID: "x"}
	assert.ErrorContains(t, s.Submit(context.Background(), sampleEnvelope()), "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMulti(t *testing.T) {
	var order []string
	rec := func(name string, err error) Sink {
		return SinkFunc(func(context.Context, Envelope) error {
			order = append(order, name)
			return err
		})
	}
	boom := errors.New("boom")

	err := Multi{rec("a", nil), nil, rec("b", boom), rec("c", nil)}.Submit(context.Background(), Envelope{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, order)
}
