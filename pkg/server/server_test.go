package server_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gabrielmiguelok/stepform/client"
	"github.com/gabrielmiguelok/stepform/pkg/dom"
	"github.com/gabrielmiguelok/stepform/pkg/health"
	"github.com/gabrielmiguelok/stepform/pkg/js"
	"github.com/gabrielmiguelok/stepform/pkg/lifecycle"
	"github.com/gabrielmiguelok/stepform/pkg/metrics"
	"github.com/gabrielmiguelok/stepform/pkg/protocol"
	"github.com/gabrielmiguelok/stepform/pkg/server"
	"github.com/gabrielmiguelok/stepform/pkg/site"
	"github.com/gabrielmiguelok/stepform/pkg/stepper"
)

func newServer(t *testing.T, mutate func(*server.Options)) *server.Server {
	t.Helper()
	s := site.New(nil)
	opts, err := stepper.OptionsFromDefinition(s.Definition())
	if err != nil {
		t.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	o := server.Options{
		Site:          s,
		Stepper:       opts,
		FrameInterval: 5 * time.Millisecond,
		Metrics:       metrics.NewWithRegistry(reg, reg),
		Version:       "test",
	}
	if mutate != nil {
		mutate(&o)
	}
	return server.New(o)
}

func get(t *testing.T, h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPage_Annotated(t *testing.T) {
	srv := newServer(t, nil)
	rec := get(t, srv.Handler(), "/", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Header().Get(server.RequestIDHeader) == "" {
		t.Error("missing request id")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" || rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("missing security headers")
	}

	doc, err := dom.Parse(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	form := doc.QuerySelector("#contact-form")
	if form == nil || form.GetAttribute(dom.KeyAttr) == "" {
		t.Fatal("expected a keyed contact form")
	}

	// The served keys must match a fresh render of the same page.
	page, _ := site.New(nil).Render("/")
	mirror, _ := dom.Parse(bytes.NewReader(page))
	if got := mirror.QuerySelector("#contact-form").Key(); got != form.GetAttribute(dom.KeyAttr) {
		t.Errorf("mirror key %q != served key %q", got, form.GetAttribute(dom.KeyAttr))
	}
}

func TestPage_NotFound(t *testing.T) {
	rec := get(t, newServer(t, nil).Handler(), "/precios", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	rec := get(t, newServer(t, nil).Handler(), "/", http.Header{server.RequestIDHeader: {"abc-123"}})
	if got := rec.Header().Get(server.RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want abc-123", got)
	}
}

func TestScript_Gzip(t *testing.T) {
	rec := get(t, newServer(t, nil).Handler(), site.ScriptPath, http.Header{"Accept-Encoding": {"gzip"}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("Content-Encoding = %q", rec.Header().Get("Content-Encoding"))
	}
	zr, err := gzip.NewReader(rec.Body)
	if err != nil {
		t.Fatal(err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(body, client.Script()) {
		t.Error("served script differs from the embedded runtime")
	}
}

func TestSubmit_Redirects(t *testing.T) {
	srv := newServer(t, nil)
	form := url.Values{"name": {"Ana"}, "email": {"ana@example.com"}, "message": {"Hola"}}
	req := httptest.NewRequest(http.MethodPost, "/gracias", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/gracias" {
		t.Errorf("Location = %q", loc)
	}
}

func TestSubmit_RateLimited(t *testing.T) {
	srv := newServer(t, func(o *server.Options) {
		o.Limits = server.Limits{SubmitRate: 0.001, SubmitBurst: 1}
	})

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/gracias", strings.NewReader("name=Ana"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}
	if code := post(); code != http.StatusSeeOther {
		t.Fatalf("first post = %d, want 303", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Errorf("second post = %d, want 429", code)
	}
}

func TestHealth(t *testing.T) {
	rec := get(t, newServer(t, nil).Handler(), server.HealthPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var report health.Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Status != health.StatusHealthy || report.Version != "test" {
		t.Errorf("unexpected report: %+v", report)
	}
	for _, name := range []string{"site", "connections"} {
		if _, ok := report.Checks[name]; !ok {
			t.Errorf("missing check %q", name)
		}
	}
}

func TestMetrics(t *testing.T) {
	h := newServer(t, nil).Handler()
	get(t, h, "/", nil)

	rec := get(t, h, server.MetricsPath, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `stepform_http_requests_total{method="GET",route="page",status="200"} 1`) {
		t.Errorf("page request not counted:\n%s", rec.Body.String())
	}
}

func TestMetrics_Disabled(t *testing.T) {
	srv := newServer(t, func(o *server.Options) { o.Metrics = nil })
	if rec := get(t, srv.Handler(), server.MetricsPath, nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	var recovered any
	h := server.Chain(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		server.RequestID(nil),
		server.Recovery(func(v any) { recovered = v }),
	)
	rec := get(t, h, "/", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
	if recovered != "boom" {
		t.Errorf("onPanic got %v, want boom", recovered)
	}
}

func TestRecovery_CountedInMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg, reg)
	h := server.Chain(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }),
		server.Recovery(func(any) { m.Panic() }),
	)
	get(t, h, "/", nil)

	rec := get(t, m.Handler(), "/metrics", nil)
	if !strings.Contains(rec.Body.String(), "stepform_panics_total 1") {
		t.Errorf("panic not counted:\n%s", rec.Body.String())
	}
}

func TestRequestID_Generated(t *testing.T) {
	var inHandler string
	h := server.Chain(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { inHandler = server.GetRequestID(r.Context()) }),
		server.RequestID(nil),
	)
	rec := get(t, h, "/", nil)
	if inHandler == "" || rec.Header().Get(server.RequestIDHeader) != inHandler {
		t.Errorf("request id = %q in handler, %q in response", inHandler, rec.Header().Get(server.RequestIDHeader))
	}
}

func TestSubmit_RateLimitedPerForwardedClient(t *testing.T) {
	srv := newServer(t, func(o *server.Options) {
		o.Limits = server.Limits{SubmitRate: 0.001, SubmitBurst: 1, TrustProxy: true}
	})

	post := func(client string) int {
		req := httptest.NewRequest(http.MethodPost, "/gracias", strings.NewReader("name=Ana"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Forwarded-For", client)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	got := []int{post("1.1.1.1"), post("2.2.2.2"), post("1.1.1.1")}
	want := []int{http.StatusSeeOther, http.StatusSeeOther, http.StatusTooManyRequests}
	if !cmp.Equal(got, want) {
		t.Errorf("codes = %v, want %v", got, want)
	}
}

// liveClient is a browser stand-in speaking JSON over /live.
type liveClient struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
	ref   int
}

func dial(t *testing.T, ts *httptest.Server) *liveClient {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+server.LivePath, &websocket.DialOptions{
		Subprotocols: []string{"stepform.json"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return &liveClient{t: t, conn: conn, codec: protocol.NewJSONCodec()}
}

// request sends msg and collects every message up to its reply.
func (c *liveClient) request(msg *protocol.Message) []*protocol.Message {
	c.t.Helper()
	c.ref++
	ref := strconv.Itoa(c.ref)
	data, err := c.codec.Encode(msg.WithRef(ref))
	if err != nil {
		c.t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Fatalf("write: %v", err)
	}

	var got []*protocol.Message
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		m, err := c.codec.Decode(data)
		if err != nil {
			c.t.Fatal(err)
		}
		got = append(got, m)
		if m.Ref == ref && (m.Type == protocol.MsgReply || m.Type == protocol.MsgError) {
			return got
		}
	}
}

func listens(msgs []*protocol.Message) int {
	n := 0
	for _, m := range msgs {
		if m.Type != protocol.MsgPatch {
			continue
		}
		p, err := m.Patch()
		if err != nil {
			continue
		}
		for _, op := range p.Ops.Ops() {
			if op == js.OpListen {
				n++
			}
		}
	}
	return n
}

func TestLive_PageLoadBindsForm(t *testing.T) {
	srv := newServer(t, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := dial(t, ts)
	msgs := c.request(protocol.LifecycleMessage("stepform", lifecycle.EventPageLoad, "/"))

	last := msgs[len(msgs)-1]
	if last.Type != protocol.MsgReply {
		t.Fatalf("page-load answered with %s: %v", last.Type, last.Payload)
	}
	if listens(msgs) == 0 {
		t.Error("expected listen patches for the stepper controls")
	}
	if srv.Connections() != 1 {
		t.Errorf("Connections = %d, want 1", srv.Connections())
	}

	// Pages without the form bind nothing.
	c.request(protocol.LifecycleMessage("stepform", lifecycle.EventBeforeSwap, "/nosotros"))
	msgs = c.request(protocol.LifecycleMessage("stepform", lifecycle.EventAfterSwap, "/nosotros"))
	if listens(msgs) != 0 {
		t.Errorf("listens on /nosotros = %d, want 0", listens(msgs))
	}

	c.conn.Close(websocket.StatusNormalClosure, "")
	deadline := time.Now().Add(2 * time.Second)
	for srv.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection not released after close")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLive_RejectsAtCapacity(t *testing.T) {
	srv := newServer(t, func(o *server.Options) { o.MaxConnections = 1 })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := dial(t, ts)
	c.request(protocol.LifecycleMessage("stepform", lifecycle.EventPageLoad, "/"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+server.LivePath, nil)
	if err == nil {
		t.Fatal("expected the second connection to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("response = %v, want 503", resp)
	}

	// Answer the server's close handshake.
	go func() {
		for {
			if _, _, err := c.conn.Read(context.Background()); err != nil {
				return
			}
		}
	}()

	srv.CloseConnections()
	deadline := time.Now().Add(2 * time.Second)
	for srv.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("CloseConnections did not release the connection")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLive_LimitsConnectionsPerIP(t *testing.T) {
	srv := newServer(t, func(o *server.Options) {
		o.Limits = server.Limits{ConnectionsPerIP: 1}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	c := dial(t, ts)
	c.request(protocol.LifecycleMessage("stepform", lifecycle.EventPageLoad, "/"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+server.LivePath, nil)
	if err == nil {
		t.Fatal("expected the second connection from the same address to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("response = %v, want 429", resp)
	}
}
