package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFeed struct {
	items     []statusItem
	dismissed []string
	err       error
}

func (f *fakeFeed) status() ([]statusItem, error) { return f.items, f.err }

func (f *fakeFeed) dismiss(id string) error {
	f.dismissed = append(f.dismissed, id)
	return f.err
}

func (f *fakeFeed) dismissAll() (int, error) {
	n := len(f.items)
	f.items = nil
	return n, f.err
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_DismissSelected(t *testing.T) {
	f := &fakeFeed{items: []statusItem{{ID: "a", Label: "MUTE"}, {ID: "b", Label: "UNMUTE"}}}
	var m tea.Model = initialModel(f)

	m, _ = m.Update(itemsMsg(f.items))
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := m.Update(key("d"))
	require.NotNil(t, cmd)

	msg := cmd()
	assert.Equal(t, dismissedMsg(1), msg)
	assert.Equal(t, []string{"b"}, f.dismissed)

	m, _ = m.Update(msg)
	assert.Contains(t, m.View(), "Dismissed 1")
}

func TestModel_DismissAllAndErrors(t *testing.T) {
	f := &fakeFeed{items: []statusItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	var m tea.Model = initialModel(f)
	m, _ = m.Update(itemsMsg(f.items))

	_, cmd := m.Update(key("D"))
	assert.Equal(t, dismissedMsg(3), cmd())

	f.err = errors.New("connection refused")
	msg := fetch(f)()
	m, _ = m.Update(msg)
	assert.Contains(t, m.View(), "connection refused")
}

func TestModel_CursorClampsWhenItemsShrink(t *testing.T) {
	f := &fakeFeed{}
	var m tea.Model = initialModel(f)
	m, _ = m.Update(itemsMsg{{ID: "a"}, {ID: "b"}, {ID: "c"}})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m, _ = m.Update(itemsMsg{{ID: "a"}})

	assert.Equal(t, 0, m.(model).cursor)
	assert.Contains(t, initialModel(f).View(), "Nothing in flight")
}

func TestClient_SendsViewerID(t *testing.T) {
	var viewers []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		viewers = append(viewers, r.Header.Get("X-Viewer-ID"))
		switch r.URL.Path {
		case "/api/v1/status":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{{"id": "c1", "kind": "command", "state": "queued", "progress": 0}},
			})
		case "/api/v1/status/dismiss-all":
			_ = json.NewEncoder(w).Encode(map[string]int{"dismissed": 4})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing viewer id"})
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL+"/", "viewer-1")
	items, err := c.status()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "c1", items[0].ID)

	n, err := c.dismissAll()
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	err = c.dismiss("c1")
	assert.ErrorContains(t, err, "400 missing viewer id")
	assert.Equal(t, []string{"viewer-1", "viewer-1", "viewer-1"}, viewers)
}
