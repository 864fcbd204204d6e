package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/propsheet/internal/auth"
	"github.com/conduit-lang/propsheet/internal/catalog"
	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/command"
)

type fixture struct {
	srv      *Server
	http     *httptest.Server
	tokens   *auth.Service
	history  *command.History
	registry *columns.Registry
}

func newFixture(t *testing.T, probe time.Duration, withAuth bool) *fixture {
	t.Helper()

	store := columns.NewFileStore(filepath.Join(t.TempDir(), "columns.json"), nil)
	f := &fixture{
		history:  command.NewHistory(),
		registry: columns.NewRegistry(context.Background(), store, columns.WithFlushDelay(time.Hour)),
	}
	if withAuth {
		f.tokens = auth.NewService("test-secret", time.Hour)
	}

	srv, err := New(DefaultConfig(), Deps{
		Catalog: catalog.New(probe),
		History: f.history,
		Columns: f.registry,
		Auth:    f.tokens,
	})
	require.NoError(t, err)
	f.srv = srv
	f.http = httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		f.http.Close()
		f.srv.Close()
		f.registry.Close(context.Background())
	})
	return f
}

func (f *fixture) token(t *testing.T, roles ...string) string {
	t.Helper()
	tok, err := f.tokens.GenerateToken("alice", roles)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, f.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) open(t *testing.T, sample string) sourceView {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/sources", "", openRequest{Sample: sample})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var view sourceView
	decode(t, resp, &view)
	return view
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func findProperty(props []propertyView, id string) *propertyView {
	for i := range props {
		if props[i].ID == id {
			return &props[i]
		}
		if found := findProperty(props[i].Children, id); found != nil {
			return found
		}
	}
	return nil
}

func TestHealthAndSamples(t *testing.T) {
	f := newFixture(t, 0, false)

	resp := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/samples", "", nil)
	var names []string
	decode(t, resp, &names)
	assert.Equal(t, []string{"connection", "driver", "hosts", "settings"}, names)
}

func TestOpen_LazyAttributeIsPending(t *testing.T) {
	f := newFixture(t, 100*time.Millisecond, false)

	view := f.open(t, "driver")
	require.Len(t, view.Categories, 1)
	props := view.Categories[0].Properties

	name := findProperty(props, "name")
	require.NotNil(t, name)
	assert.Equal(t, "PostgreSQL", name.Value)
	assert.True(t, name.Editable)

	version := findProperty(props, "version")
	require.NotNil(t, version)
	assert.True(t, version.Lazy)
	assert.True(t, version.Pending)
	assert.Equal(t, "Loading...", version.Value)

	resp := f.do(t, http.MethodGet, "/sources/"+view.ID+"/properties/version?wait=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved propertyView
	decode(t, resp, &resolved)
	assert.False(t, resolved.Pending)
	assert.Equal(t, "16.2", resolved.Value)
}

func TestOpen_UnknownSample(t *testing.T) {
	f := newFixture(t, 0, false)

	resp := f.do(t, http.MethodPost, "/sources", "", openRequest{Sample: "nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	decode(t, resp, &body)
	assert.Equal(t, "not_found", body.Code)
}

func TestOpen_ConnectionTree(t *testing.T) {
	f := newFixture(t, 0, false)

	view := f.open(t, "connection")
	var names []string
	for _, c := range view.Categories {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"General", "Info"}, names)

	network := findProperty(view.Categories[0].Properties, "network")
	require.NotNil(t, network)
	require.NotEmpty(t, network.Children)
	assert.Equal(t, "network.host", network.Children[0].ID)

	driver := findProperty(view.Categories[0].Properties, "driver")
	require.NotNil(t, driver)
	assert.Equal(t, []interface{}{"PostgreSQL", "MySQL", "SQLite"}, driver.Values)

	assert.Nil(t, findProperty(view.Categories[1].Properties, "statistics.size"), "expensive attributes are hidden")
}

func TestWrite_RequiresEditorRole(t *testing.T) {
	f := newFixture(t, 0, true)
	view := f.open(t, "driver")
	path := "/sources/" + view.ID + "/properties/name"

	resp := f.do(t, http.MethodPut, path, "", writeRequest{Value: "MySQL"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPut, path, f.token(t, "viewer"), writeRequest{Value: "MySQL"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, path, "garbage", writeRequest{Value: "MySQL"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPut, path, f.token(t, auth.RoleEditor), writeRequest{Value: "MySQL"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pv propertyView
	decode(t, resp, &pv)
	assert.Equal(t, "MySQL", pv.Value)
}

func TestProperties_EditableDependsOnCaller(t *testing.T) {
	f := newFixture(t, 0, true)
	view := f.open(t, "driver")

	resp := f.do(t, http.MethodGet, "/sources/"+view.ID, "", nil)
	var anonymous sourceView
	decode(t, resp, &anonymous)
	assert.False(t, findProperty(anonymous.Categories[0].Properties, "name").Editable)

	resp = f.do(t, http.MethodGet, "/sources/"+view.ID, f.token(t, auth.RoleEditor), nil)
	var editor sourceView
	decode(t, resp, &editor)
	assert.True(t, findProperty(editor.Categories[0].Properties, "name").Editable)
	assert.False(t, findProperty(editor.Categories[0].Properties, "vendor").Editable)
}

func TestWrite_Errors(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "connection")
	base := "/sources/" + view.ID + "/properties/"

	resp := f.do(t, http.MethodPut, base+"network", "", writeRequest{Value: "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, base+"created", "", writeRequest{Value: "x"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPut, base+"missing", "", writeRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/sources/not-a-uuid/properties/name", "", writeRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUndoRedo(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "driver")
	path := "/sources/" + view.ID + "/properties/name"

	for _, v := range []string{"pg", "pg2", "pg3"} {
		resp := f.do(t, http.MethodPut, path, "", writeRequest{Value: v})
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := f.do(t, http.MethodGet, "/history", "", nil)
	var hist historyView
	decode(t, resp, &hist)
	assert.True(t, hist.CanUndo)
	require.Len(t, hist.Commands, 1, "consecutive writes merge")

	resp = f.do(t, http.MethodPost, "/history/undo", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, path, "", nil)
	var pv propertyView
	decode(t, resp, &pv)
	assert.Equal(t, "PostgreSQL", pv.Value)

	resp = f.do(t, http.MethodPost, "/history/undo", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/history/redo", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, path, "", nil)
	decode(t, resp, &pv)
	assert.Equal(t, "pg3", pv.Value)
}

func TestBoundarySplitsCommands(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "driver")
	path := "/sources/" + view.ID + "/properties/name"

	f.do(t, http.MethodPut, path, "", writeRequest{Value: "pg"})
	resp := f.do(t, http.MethodPost, "/history/boundary", "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	f.do(t, http.MethodPut, path, "", writeRequest{Value: "pg2"})

	assert.Len(t, f.history.Commands(), 2)
}

func TestReset(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "connection")
	path := "/sources/" + view.ID + "/properties/network.port"

	resp := f.do(t, http.MethodPut, path, "", writeRequest{Value: 6543})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, path+"/reset", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pv propertyView
	decode(t, resp, &pv)
	assert.EqualValues(t, 5432, pv.Value)
}

func TestCloseSource(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "hosts")

	resp := f.do(t, http.MethodDelete, "/sources/"+view.ID, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/sources/"+view.ID, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestColumns(t *testing.T) {
	f := newFixture(t, 0, false)

	states := []columns.State{
		{Name: "name", Visible: true, Order: 0, Width: 180},
		{Name: "value", Visible: true, Order: 1, Width: 240},
	}
	resp := f.do(t, http.MethodPut, "/columns/properties", "", states)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/columns/properties", "", nil)
	var got []columns.State
	decode(t, resp, &got)
	assert.Equal(t, states, got)

	resp = f.do(t, http.MethodGet, "/columns", "", nil)
	var views []string
	decode(t, resp, &views)
	assert.Equal(t, []string{"properties"}, views)
	assert.True(t, f.registry.Pending())

	resp = f.do(t, http.MethodPut, "/columns/properties", "", []columns.State{{Width: 10}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func dial(t *testing.T, f *fixture, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/sources/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, MessageSubscribed, hello.Type)
	return conn
}

// awaitMessage reads until a message matching fn arrives
func awaitMessage(t *testing.T, conn *websocket.Conn, fn func(Message) bool) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		if fn(msg) {
			return msg
		}
	}
}

func TestWebsocket_PushesLazyResolution(t *testing.T) {
	f := newFixture(t, 50*time.Millisecond, false)
	view := f.open(t, "driver")
	conn := dial(t, f, view.ID)

	resp := f.do(t, http.MethodPost, "/sources/"+view.ID+"/refresh", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := awaitMessage(t, conn, func(m Message) bool {
		return m.Type == MessageResolved && m.Attribute == "version" && m.Completed
	})
	assert.Equal(t, view.ID, msg.Source)
	assert.Equal(t, "16.2", msg.Value)
}

func TestWebsocket_PushesChanges(t *testing.T) {
	f := newFixture(t, 0, false)
	view := f.open(t, "driver")
	conn := dial(t, f, view.ID)

	resp := f.do(t, http.MethodPut, "/sources/"+view.ID+"/properties/name", "", writeRequest{Value: "pg"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	msg := awaitMessage(t, conn, func(m Message) bool {
		return m.Type == MessageChanged
	})
	assert.Equal(t, "name", msg.Attribute)
	assert.Equal(t, "pg", msg.Value)
}

func TestWebsocket_UnknownSource(t *testing.T) {
	f := newFixture(t, 0, false)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/sources/" + "00000000-0000-0000-0000-000000000000" + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}
