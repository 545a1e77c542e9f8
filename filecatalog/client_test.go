// These tests exercise the File Catalog client against local HTTP stand-ins.
package filecatalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// tests that queries carry the selector, the key projection, and the page
// window
func TestQuery(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("/api/files", r.URL.Path)
		var selector map[string]any
		err := json.Unmarshal([]byte(r.URL.Query().Get("query")), &selector)
		assert.Nil(err)
		site := selector["locations.site"].(map[string]any)
		assert.Equal("WIPAC", site["$eq"])
		assert.Equal("uuid|logical_name|file_size", r.URL.Query().Get("keys"))
		assert.Equal("1000", r.URL.Query().Get("limit"))
		assert.Equal("2000", r.URL.Query().Get("start"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"files": [
			{"uuid": "f1", "logical_name": "/data/exp/a", "file_size": 100},
			{"uuid": "f2", "logical_name": "/data/exp/b", "file_size": 200}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, 5*time.Second)
	records, err := client.Query(context.Background(),
		map[string]any{"locations.site": map[string]any{"$eq": "WIPAC"}},
		[]string{"uuid", "logical_name", "file_size"}, 1000, 2000)
	assert.Nil(err)
	assert.Len(records, 2)
	assert.Equal("f1", records[0].UUID)
	assert.Equal(int64(200), records[1].FileSize)
}

// tests that a missing record is reported as a NotFoundError
func TestGetMissing(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	record, err := NewClient(server.URL, nil, 5*time.Second).Get(context.Background(), "nope")
	assert.Nil(record)
	var notFound *NotFoundError
	assert.ErrorAs(err, &notFound)
}

// tests that creation returns the new record's uuid from either response
// shape the catalog produces
func TestCreate(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	shapes := map[string]string{
		"uuid":  `{"uuid": "abc-123"}`,
		"links": `{"_links": {"self": {"href": "/api/files/abc-123"}}}`,
	}
	for name, response := range shapes {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(http.MethodPost, r.Method)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(response))
		}))
		uuid, err := NewClient(server.URL, nil, 5*time.Second).Create(context.Background(), Record{
			LogicalName: "/data/exp/a",
			FileSize:    100,
		})
		assert.Nil(err, name)
		assert.Equal("abc-123", uuid, name)
		server.Close()
	}
}

// tests the projection used in sidecars and cherry-picked catalog documents
func TestProjected(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	record := Record{
		UUID:           "f1",
		LogicalName:    "/data/exp/a",
		Checksum:       map[string]string{"sha512": "cafe"},
		FileSize:       100,
		MetaModifyDate: "2026-01-02 03:04:05.000000",
		Locations:      []Location{{Site: "WIPAC", Path: "/data/exp/a"}},
	}
	projected := record.Projected()
	assert.Len(projected, 5)
	assert.Equal("f1", projected["uuid"])
	assert.Equal("/data/exp/a", projected["logical_name"])
	assert.NotContains(projected, "locations")
}
