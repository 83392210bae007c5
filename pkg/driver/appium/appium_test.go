package appium

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/matryer/is"
	"github.com/nine15pm/GrokEval/pkg/driver"
)

type node struct {
	id        string
	using     string
	value     string
	text      string
	displayed bool
}

// fakeAppium implements the subset of WebDriver the driver uses.
type fakeAppium struct {
	mu       sync.Mutex
	nodes    []node
	sessions int
	deleted  bool
	clicked  []string
	caps     map[string]any
	live     string // current session id, s1 until one is created
	typed    map[string]string
}

func (f *fakeAppium) current() string {
	if f.live == "" {
		return "s1"
	}
	return f.live
}

// expire ends the current session the way Appium's newCommandTimeout does.
func (f *fakeAppium) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live = "expired"
}

func (f *fakeAppium) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reply := func(status int, v any) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{"value": v})
	}
	notFound := func() {
		reply(http.StatusNotFound, map[string]string{"error": "no such element", "message": "gone"})
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/session":
		var body struct {
			Capabilities struct {
				AlwaysMatch map[string]any `json:"alwaysMatch"`
			} `json:"capabilities"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.caps = body.Capabilities.AlwaysMatch
		f.sessions++
		f.live = fmt.Sprintf("s%d", f.sessions)
		reply(http.StatusOK, map[string]any{"sessionId": f.live})

	case r.Method == http.MethodDelete && len(parts) == 2:
		f.deleted = true
		reply(http.StatusOK, nil)

	case len(parts) < 3 || parts[1] != f.current():
		reply(http.StatusNotFound, map[string]string{"error": "invalid session id", "message": "no session"})

	case r.Method == http.MethodPost && parts[2] == "elements":
		var loc struct{ Using, Value string }
		json.NewDecoder(r.Body).Decode(&loc)
		refs := []map[string]string{}
		for _, n := range f.nodes {
			if n.using == loc.Using && n.value == loc.Value {
				refs = append(refs, map[string]string{elementKey: n.id})
			}
		}
		reply(http.StatusOK, refs)

	case parts[2] == "element" && len(parts) == 5:
		var n *node
		for i := range f.nodes {
			if f.nodes[i].id == parts[3] {
				n = &f.nodes[i]
			}
		}
		if n == nil {
			notFound()
			return
		}
		switch parts[4] {
		case "text":
			reply(http.StatusOK, n.text)
		case "displayed":
			reply(http.StatusOK, n.displayed)
		case "click":
			f.clicked = append(f.clicked, n.id)
			reply(http.StatusOK, nil)
		case "value":
			var body struct{ Text string }
			json.NewDecoder(r.Body).Decode(&body)
			if f.typed == nil {
				f.typed = make(map[string]string)
			}
			f.typed[n.id] += body.Text
			reply(http.StatusOK, nil)
		}

	default:
		reply(http.StatusNotFound, map[string]string{"error": "unknown command", "message": r.URL.Path})
	}
}

func newServer(t *testing.T, f *fakeAppium) *httptest.Server {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return srv
}

func TestLocator(t *testing.T) {
	tests := []struct {
		id    driver.Identifier
		using string
		value string
	}{
		{"id=com.app:id/new_chat", "id", "com.app:id/new_chat"},
		{"accessibility id=New chat", "accessibility id", "New chat"},
		{"xpath=//android.widget.TextView[@index='2']", "xpath", "//android.widget.TextView[@index='2']"},
		{"//android.widget.Button[@text='Stop']", "xpath", "//android.widget.Button[@text='Stop']"},
		{"Stop generating", "accessibility id", "Stop generating"},
		{"a=b", "accessibility id", "a=b"},
	}

	for _, tt := range tests {
		using, value := locator(tt.id)
		if using != tt.using || value != tt.value {
			t.Errorf("locator(%q) = (%q, %q), want (%q, %q)", tt.id, using, value, tt.using, tt.value)
		}
	}
}

func TestDriverQueries(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{nodes: []node{
		{id: "e1", using: "id", value: "msg", text: "first", displayed: true},
		{id: "e2", using: "id", value: "msg", text: "latest reply", displayed: true},
		{id: "e3", using: "accessibility id", value: "Stop", displayed: false},
		{id: "e4", using: "accessibility id", value: "New chat", displayed: true},
	}}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL, Capabilities: map[string]any{"platformName": "Android"}}, nil)
	ctx := context.Background()

	text, err := d.QueryText(ctx, "id=msg")
	is.NoErr(err)
	is.Equal(text, "latest reply")

	_, err = d.QueryText(ctx, "id=missing")
	is.True(errors.Is(err, driver.ErrNotFound))

	present, err := d.QueryPresent(ctx, "Stop")
	is.NoErr(err)
	is.True(!present) // hidden

	present, err = d.QueryPresent(ctx, "New chat")
	is.NoErr(err)
	is.True(present)

	is.NoErr(d.Click(ctx, "New chat"))
	is.True(errors.Is(d.Click(ctx, "Stop"), driver.ErrNotFound))

	is.NoErr(d.Close())

	f.mu.Lock()
	defer f.mu.Unlock()
	is.Equal(f.sessions, 1)
	is.Equal(f.caps["platformName"], "Android")
	is.Equal(f.clicked, []string{"e4"})
	is.True(f.deleted)
}

func TestDriverAttachesToExistingSession(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{nodes: []node{{id: "e1", using: "id", value: "x", displayed: true}}}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL, SessionID: "s1"}, nil)

	present, err := d.QueryPresent(context.Background(), "id=x")
	is.NoErr(err)
	is.True(present)
	is.NoErr(d.Close())

	f.mu.Lock()
	defer f.mu.Unlock()
	is.Equal(f.sessions, 0)
	is.True(!f.deleted) // not ours to delete
}

func TestDriverSurfacesWebDriverErrors(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL, SessionID: "expired"}, nil)

	_, err := d.QueryPresent(context.Background(), "id=x")
	var wdErr *webDriverError
	is.True(errors.As(err, &wdErr))
	is.Equal(wdErr.Code, "invalid session id")
	is.True(!errors.Is(err, driver.ErrNotFound))

	// An attached session belongs to the user and is not replaced.
	is.Equal(d.sessionID, "expired")
	f.mu.Lock()
	defer f.mu.Unlock()
	is.Equal(f.sessions, 0)
}

func TestDriverRecreatesExpiredSession(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{nodes: []node{{id: "e1", using: "id", value: "msg", text: "reply", displayed: true}}}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL}, nil)
	ctx := context.Background()

	text, err := d.QueryText(ctx, "id=msg")
	is.NoErr(err)
	is.Equal(text, "reply")

	f.expire()

	text, err = d.QueryText(ctx, "id=msg")
	is.NoErr(err)
	is.Equal(text, "reply")
	is.Equal(d.sessionID, "s2")
	is.NoErr(d.Close())

	f.mu.Lock()
	defer f.mu.Unlock()
	is.Equal(f.sessions, 2)
	is.True(f.deleted)
}

func TestDriverKeepsStatusOfNonJSONErrors(t *testing.T) {
	is := is.New(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "<html><body>502 Bad Gateway</body></html>")
	}))
	t.Cleanup(srv.Close)
	d := New(Config{ServerURL: srv.URL}, nil)

	err := d.Connect(context.Background())
	var wdErr *webDriverError
	is.True(errors.As(err, &wdErr))
	is.Equal(wdErr.Status, http.StatusBadGateway)
	is.Equal(wdErr.Code, "unknown error")
	is.Equal(wdErr.Message, "502 Bad Gateway")
}

func TestDriverCloseIsBounded(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL}, nil)
	is.NoErr(d.Connect(context.Background()))
	is.Equal(d.client.Timeout, requestTimeout)

	is.NoErr(d.Close())
	is.Equal(d.sessionID, "")
}

func TestDriverType(t *testing.T) {
	is := is.New(t)
	f := &fakeAppium{nodes: []node{
		{id: "e1", using: "id", value: "input", displayed: false},
		{id: "e2", using: "id", value: "input", displayed: true},
	}}
	srv := newServer(t, f)
	d := New(Config{ServerURL: srv.URL}, nil)
	ctx := context.Background()

	is.NoErr(d.Type(ctx, "id=input", "hello"))
	is.True(errors.Is(d.Type(ctx, "id=missing", "hello"), driver.ErrNotFound))

	f.mu.Lock()
	defer f.mu.Unlock()
	is.Equal(f.typed, map[string]string{"e2": "hello\uE007"})
}
