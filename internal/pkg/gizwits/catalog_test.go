package gizwits

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anicoll/gizwits-integration/internal/pkg/model"
)

func bindingsServer(t *testing.T, total int, requests *[]int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/app/bindings", r.URL.Path)
		require.Equal(t, "0", r.URL.Query().Get("show_disabled"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		require.NoError(t, err)
		skip, err := strconv.Atoi(r.URL.Query().Get("skip"))
		require.NoError(t, err)
		*requests = append(*requests, skip)

		devices := []model.Device{}
		for i := skip; i < skip+limit && i < total; i++ {
			devices = append(devices, model.Device{
				ID:          fmt.Sprintf("did-%03d", i),
				ProductName: "Vesta",
				Host:        "sandbox.gizwits.com",
				WssPort:     8880,
			})
		}
		writeJSON(t, w, http.StatusOK, bindingsResponse{Devices: devices})
	}))
}

func TestListBindings_Pagination(t *testing.T) {
	requests := []int{}
	srv := bindingsServer(t, 47, &requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.setSession(model.Session{Token: "token-1", ExpiresAt: time.Now().Add(time.Hour)})

	devices, err := c.ListBindings(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, devices, 47)
	// three pages: 20, 20, 7 - the short page ends the listing
	assert.Equal(t, []int{0, 20, 40}, requests)
	assert.Equal(t, "did-000", devices[0].ID)
	assert.Equal(t, "did-046", devices[46].ID)
}

func TestListBindings_ExactPageBoundary(t *testing.T) {
	requests := []int{}
	srv := bindingsServer(t, 40, &requests)
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.setSession(model.Session{Token: "token-1", ExpiresAt: time.Now().Add(time.Hour)})

	devices, err := c.ListBindings(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, devices, 40)
	// a full final page forces one extra request to observe the empty page
	assert.Equal(t, []int{0, 20, 40}, requests)
}

func TestListBindings_ProductTypeFilter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, bindingsResponse{Devices: []model.Device{
			{ID: "did-1", ProductName: "Vesta"},
			{ID: "did-2", ProductName: "Other"},
			{ID: "did-3", ProductName: "Vesta"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.setSession(model.Session{Token: "token-1", ExpiresAt: time.Now().Add(time.Hour)})

	devices, err := c.ListBindings(context.Background(), []string{"Vesta"})
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "did-1", devices[0].ID)
	assert.Equal(t, "did-3", devices[1].ID)
}

func TestListBindings_ErrorAbortsListing(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls > 1 {
			writeJSON(t, w, http.StatusInternalServerError, errorResponse{ErrorCode: 9999})
			return
		}
		devices := make([]model.Device, defaultPageSize)
		for i := range devices {
			devices[i] = model.Device{ID: fmt.Sprintf("did-%d", i)}
		}
		writeJSON(t, w, http.StatusOK, bindingsResponse{Devices: devices})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.setSession(model.Session{Token: "token-1", ExpiresAt: time.Now().Add(time.Hour)})

	devices, err := c.ListBindings(context.Background(), nil)
	assert.ErrorIs(t, err, ErrBindingFetch)
	assert.Nil(t, devices)
}
