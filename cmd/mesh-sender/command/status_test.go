package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshhub/internal/microservices/http-api/dto"
)

// fakeReceiver serves /health and answers /api/v1/target with target, or 404 when nil
func fakeReceiver(t *testing.T, target *dto.TargetResponse) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(dto.HealthResponse{Status: "ok", Listening: true})
	})
	mux.HandleFunc("/api/v1/target", func(w http.ResponseWriter, _ *http.Request) {
		if target == nil {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no mesh received yet"})
			return
		}
		json.NewEncoder(w).Encode(target)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runStatus(t *testing.T, api string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	t.Cleanup(func() { rootCmd.SetOut(nil) })
	rootCmd.SetArgs([]string{"status", "--api", api})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestStatusCommand_ShowsTarget(t *testing.T) {
	srv := fakeReceiver(t, &dto.TargetResponse{
		EntityID:      "5f0c6a2e-0000-4000-8000-000000000001",
		Tag:           "BlenderTarget",
		VertexCount:   8,
		TriangleCount: 12,
		Revision:      3,
		Material:      "BasicShapeMaterial",
		Min:           dto.Vec3{X: -1, Y: -1, Z: -1},
		Max:           dto.Vec3{X: 1, Y: 1, Z: 1},
	})

	out, err := runStatus(t, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Receiver: ok (listening: true)")
	assert.Contains(t, out, "Target:   BlenderTarget")
	assert.Contains(t, out, "8 vertices, 12 triangles, revision 3")
	assert.Contains(t, out, "Material: BasicShapeMaterial")
	assert.Contains(t, out, "Bounds:   (-1, -1, -1) - (1, 1, 1)")
}

func TestStatusCommand_NothingReceived(t *testing.T) {
	srv := fakeReceiver(t, nil)

	out, err := runStatus(t, srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "No mesh received yet.")
	assert.NotContains(t, out, "Target:")
}

func TestStatusCommand_ReceiverDown(t *testing.T) {
	srv := fakeReceiver(t, nil)
	srv.Close()

	_, err := runStatus(t, srv.URL)
	assert.ErrorContains(t, err, "failed to reach receiver")
}

func TestGetJSON(t *testing.T) {
	srv := fakeReceiver(t, nil)
	client := srv.Client()

	var health dto.HealthResponse
	code, err := getJSON(client, srv.URL+"/health", &health)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, health.Listening)

	var target dto.TargetResponse
	code, err = getJSON(client, srv.URL+"/api/v1/target", &target)
	assert.Equal(t, http.StatusNotFound, code)
	assert.ErrorContains(t, err, "unexpected status 404")
}
