// internal/api/api_test.go
//
// HTTP-level tests for the form API.  Each test builds a catalog with one
// demo-request definition, a registry, a memory session store, and a
// capturing sink, then drives the router through httptest.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanizio/knit/internal/analytics"
	"github.com/yanizio/knit/internal/form"
	"github.com/yanizio/knit/internal/middleware"
	"github.com/yanizio/knit/internal/session"
	"github.com/yanizio/knit/internal/submit"
)

const demoYAML = `
id: demo-request
title: Request a demo
formType: demo_request
fields:
  - name: name
    required: true
    minlength: 2
  - name: email
    type: email
    required: true
  - name: company
    required: true
    minlength: 2
  - name: vertical
    type: select
    required: true
    options: [education, life-services, both]
  - name: website
    type: url
`

type fixture struct {
	srv  *httptest.Server
	reg  *form.Registry
	rec  *analytics.Recorder
	mu   sync.Mutex
	sent []submit.Envelope
	fail error
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	def, err := form.ParseDefinition([]byte(demoYAML), "demo.yaml")
	require.NoError(t, err)
	cat := form.NewCatalog()
	cat.Register(def)

	f := &fixture{rec: &analytics.Recorder{}}
	f.reg = form.NewRegistry(form.NewSigner(bytes.Repeat([]byte("k"), 32), 0), form.RegistryOptions{EvictInterval: -1})
	t.Cleanup(func() { f.reg.Close(context.Background()) })

	sink := submit.SinkFunc(func(_ context.Context, env submit.Envelope) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail != nil {
			return f.fail
		}
		f.sent = append(f.sent, env)
		return nil
	})

	cfg := Config{
		Catalog:  cat,
		Registry: f.reg,
		Sessions: session.NewManager(session.NewMemory(0), false, nil),
		Options: func(*form.Definition) form.Options {
			return form.Options{Emitter: f.rec, Sink: sink}
		},
		Metrics: promhttp.Handler(),
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.srv = httptest.NewServer(New(cfg))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	return f.doWith(t, method, path, body, nil)
}

// doWith is do with extra request headers.
func (f *fixture) doWith(t *testing.T, method, path string, body any, hdr http.Header) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Page-Url", "https://knit.example/demo?utm_source=newsletter")
	for k, vs := range hdr {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func (f *fixture) create(t *testing.T) string {
	t.Helper()
	resp, out := f.do(t, http.MethodPost, "/api/forms/demo-request/instances", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := out["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestListForms(t *testing.T) {
	f := newFixture(t)
	resp, err := f.srv.Client().Get(f.srv.URL + "/api/forms")
	require.NoError(t, err)
	defer resp.Body.Close()

	var defs []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&defs))
	require.Len(t, defs, 1)
	assert.Equal(t, "demo-request", defs[0]["id"])
	assert.NotContains(t, defs[0], "endpoint")
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}

func TestCreateInstance_UnknownForm(t *testing.T) {
	f := newFixture(t)
	resp, out := f.do(t, http.MethodPost, "/api/forms/nope/instances", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, out["error"], "unknown form")
}

func TestSubmitFlow(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	base := "/api/instances/" + id

	// Empty submit: four errors, focus on the first field.
	resp, out := f.do(t, http.MethodPost, base+"/submit", map[string]any{"formatForCRM": true})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "invalid", out["status"])
	assert.Equal(t, "name", out["focus"])
	assert.Len(t, out["errors"], 4)

	for field, v := range map[string]string{
		"name":     "John Smith",
		"email":    "john@x.com",
		"company":  "Acme",
		"vertical": "education",
	} {
		resp, _ = f.do(t, http.MethodPut, base+"/fields/"+field, map[string]any{"value": v})
		require.Equal(t, http.StatusOK, resp.StatusCode, field)
	}

	resp, out = f.do(t, http.MethodPost, base+"/submit", map[string]any{"formatForCRM": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "submitted", out["status"])

	crm, ok := out["crmData"].(map[string]any)
	require.True(t, ok, "crmData present")
	assert.Equal(t, "John", crm["firstName"])
	utm, _ := crm["utm"].(map[string]any)
	assert.Equal(t, "newsletter", utm["utm_source"])

	state, _ := out["state"].(map[string]any)
	assert.Equal(t, true, state["isSubmitted"])

	f.mu.Lock()
	require.Len(t, f.sent, 1)
	assert.Equal(t, "demo-request", f.sent[0].Metadata.FormName)
	f.mu.Unlock()

	assert.Equal(t, []string{
		analytics.FormStarted,
		analytics.FormValidationFailed,
		analytics.FormSubmissionStarted,
		analytics.FormSubmitted,
	}, f.rec.Names())
}

func TestSubmit_SinkFailure(t *testing.T) {
	f := newFixture(t)
	f.fail = errors.New("boom")
	id := f.create(t)
	base := "/api/instances/" + id
	for field, v := range map[string]string{"name": "Ann Lee", "email": "ann@x.com", "company": "Acme", "vertical": "both"} {
		f.do(t, http.MethodPut, base+"/fields/"+field, map[string]any{"value": v})
	}

	resp, out := f.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "failed", out["status"])
	errs, _ := out["errors"].(map[string]any)
	assert.Equal(t, form.MsgSubmitFailed, errs["_form"])
	assert.Equal(t, 1, f.rec.Count(analytics.FormSubmissionFailed))
}

func TestSubmit_HoneypotLooksLikeSuccess(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	base := "/api/instances/" + id

	resp, _ := f.do(t, http.MethodPut, base+"/fields/"+form.DefaultHoneypot, map[string]any{"value": "http://spam.example"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := f.do(t, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "submitted", out["status"])
	assert.NotContains(t, out, "state")
	assert.Empty(t, f.sent)
	assert.Equal(t, 1, f.rec.Count(analytics.SpamDetected))
}

func TestChangeField_Errors(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)

	resp, out := f.do(t, http.MethodPut, "/api/instances/"+id+"/fields/shoeSize", map[string]any{"value": "9"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "unknown field")

	req, _ := http.NewRequest(http.MethodPut, f.srv.URL+"/api/instances/"+id+"/fields/name", strings.NewReader("{"))
	r2, err := f.srv.Client().Do(req)
	require.NoError(t, err)
	r2.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r2.StatusCode)
}

func TestInstance_NotFound(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/instances/forged", "/api/instances/forged/submit"} {
		method := http.MethodGet
		if strings.HasSuffix(path, "submit") {
			method = http.MethodPost
		}
		resp, out := f.do(t, method, path, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
		assert.Equal(t, "unknown form instance", out["error"])
	}
}

func TestResetAbandonDelete(t *testing.T) {
	f := newFixture(t)
	id := f.create(t)
	base := "/api/instances/" + id

	f.do(t, http.MethodPut, base+"/fields/name", map[string]any{"value": "Jo"})

	resp, out := f.do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state, _ := out["state"].(map[string]any)
	values, _ := state["values"].(map[string]any)
	assert.Equal(t, "", values["name"])

	f.do(t, http.MethodPut, base+"/fields/name", map[string]any{"value": "Jo"})
	_, out = f.do(t, http.MethodPost, base+"/unload", nil)
	assert.Equal(t, true, out["emitted"])
	_, out = f.do(t, http.MethodPost, base+"/abandon", nil)
	assert.Equal(t, false, out["emitted"], "abandonment fires once")

	resp, _ = f.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, f.reg.Len())
	assert.Equal(t, 1, f.rec.Count(analytics.FormAbandoned))

	resp, _ = f.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPageView_PersistsAcrossRequests(t *testing.T) {
	f := newFixture(t)
	jar := newJar(t)
	client := f.srv.Client()
	client.Jar = jar

	var last float64
	for i := 1; i <= 3; i++ {
		resp, err := client.Post(f.srv.URL+"/api/session/pageview", "application/json", nil)
		require.NoError(t, err)
		var out map[string]float64
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		resp.Body.Close()
		last = out["pageViews"]
	}
	assert.Equal(t, float64(3), last)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.create(t)

	resp, out := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, float64(1), out["instances"])

	r, err := f.srv.Client().Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}

func TestSubmitRateLimit(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SubmitLimiter = middleware.NewRateLimiter(0.001, 1) })
	id := f.create(t)

	resp, _ := f.do(t, http.MethodPost, "/api/instances/"+id+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, out := f.do(t, http.MethodPost, "/api/instances/"+id+"/submit", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "too many requests", out["error"])
}

func TestSubmitRateLimit_PerForwardedClient(t *testing.T) {
	f := newFixture(t, func(c *Config) { c.SubmitLimiter = middleware.NewRateLimiter(0.001, 1) })
	id := f.create(t)
	path := "/api/instances/" + id + "/submit"

	alice := http.Header{"X-Forwarded-For": {"203.0.113.1"}}
	bob := http.Header{"X-Forwarded-For": {"198.51.100.7"}}

	resp, _ := f.doWith(t, http.MethodPost, path, nil, alice)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp, _ = f.doWith(t, http.MethodPost, path, nil, bob)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode, "second client has its own bucket")
	resp, _ = f.doWith(t, http.MethodPost, path, nil, alice)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestNotFoundIsJSON(t *testing.T) {
	f := newFixture(t)
	resp, out := f.do(t, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not found", out["error"])
}
