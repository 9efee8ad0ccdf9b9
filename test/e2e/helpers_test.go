//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Anvil's first funded development account
const anvilKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// Runtime returns 42 from any call; init code copies it into place
const (
	runtimeCode = "0x602a60005260206000f3"
	initCode    = "0x600a600c600039600a6000f3602a60005260206000f3"
)

// startAnvil runs an anvil node posing as goerli, mining one block per second
func startAnvil(ctx context.Context, t *testing.T) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "ghcr.io/foundry-rs/foundry:latest",
		Entrypoint:   []string{"anvil"},
		Cmd:          []string{"--host", "0.0.0.0", "--chain-id", "5", "--block-time", "1"},
		ExposedPorts: []string{"8545/tcp"},
		WaitingFor:   wait.ForListeningPort("8545/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start anvil")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate anvil: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "8545/tcp", "http")
	require.NoError(t, err)
	return endpoint
}

// writeHardhatProject lays out a minimal compiled Hardhat project
func writeHardhatProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	artifact, err := json.Marshal(map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     "Pos25",
		"sourceName":       "contracts/Pos25.sol",
		"abi":              []any{},
		"bytecode":         initCode,
		"deployedBytecode": runtimeCode,
	})
	require.NoError(t, err)

	files := map[string]string{
		"hardhat.config.js":                            "module.exports = {}",
		"artifacts/contracts/Pos25.sol/Pos25.json":     string(artifact),
		"artifacts/contracts/Pos25.sol/Pos25.dbg.json": `{"_format":"hh-sol-dbg-1","buildInfo":"../../build-info/e2e.json"}`,
		"artifacts/build-info/e2e.json": `{"_format":"hh-sol-build-info-1","id":"e2e","solcVersion":"0.8.19",` +
			`"solcLongVersion":"0.8.19+commit.7dd6d404","input":{"language":"Solidity","sources":{}}}`,
	}
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

// fakeExplorer accepts every submission and reports it verified
type fakeExplorer struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeExplorer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action := r.Form.Get("action")

	f.mu.Lock()
	f.actions = append(f.actions, action)
	f.mu.Unlock()

	var body map[string]any
	switch action {
	case "getsourcecode":
		body = map[string]any{"status": "1", "message": "OK", "result": []map[string]string{{"SourceCode": ""}}}
	case "verifysourcecode":
		body = map[string]any{"status": "1", "message": "OK", "result": "guid-e2e"}
	case "checkverifystatus":
		body = map[string]any{"status": "1", "message": "OK", "result": "Pass - Verified"}
	default:
		http.Error(w, fmt.Sprintf("unexpected action %q", action), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (f *fakeExplorer) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func startExplorer(t *testing.T) (*fakeExplorer, string) {
	t.Helper()
	fake := &fakeExplorer{}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server.URL
}
