//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/posdeploy/internal/chains/evm"
	"github.com/pendergraft/posdeploy/internal/chains/evm/hardhat"
	"github.com/pendergraft/posdeploy/internal/config"
	"github.com/pendergraft/posdeploy/internal/orchestrator"
	"github.com/pendergraft/posdeploy/internal/verification"
)

func goerliProfile(rpcURL string) config.NetworkProfile {
	cfg := config.Default()
	cfg.Providers.TestnetURL = rpcURL
	cfg.Credentials.PrivateKey = anvilKey
	profile, _ := config.NewResolver(cfg).Network(config.NetworkGoerli)
	return profile
}

func TestDeploy_Anvil(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	rpcURL := startAnvil(ctx, t)
	profile := goerliProfile(rpcURL)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	artifact, err := hardhat.New().Load(writeHardhatProject(t), "Pos25")
	require.NoError(t, err)

	client, err := evm.Dial(ctx, profile.RPCURL, profile.ChainID, profile.SigningKey,
		evm.WithPollInterval(200*time.Millisecond),
		evm.WithLogger(logger),
	)
	require.NoError(t, err)
	defer client.Close()

	t.Run("without API key stops after first confirmation", func(t *testing.T) {
		var out bytes.Buffer
		orch := orchestrator.New(client, nil, orchestrator.Target{
			Network:  profile,
			Artifact: artifact,
		},
			orchestrator.WithLogger(logger),
			orchestrator.WithOutput(&out),
			orchestrator.WithBytecodeCheck(client),
			orchestrator.WithConfirmTimeout(time.Minute),
		)

		rec, err := orch.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, orchestrator.StateDone, rec.State)
		assert.Equal(t, uint64(1), rec.ConfirmationsObserved)
		assert.Equal(t, orchestrator.VerificationSkipped, rec.Verification)
		assert.Equal(t, evm.MatchFull, rec.BytecodeMatch)
		assert.Contains(t, out.String(), "deployed to: "+rec.Address)

		code, err := client.DeployedCode(ctx, common.HexToAddress(rec.Address))
		require.NoError(t, err)
		assert.NotEmpty(t, code)
	})

	t.Run("with API key verifies after ten confirmations", func(t *testing.T) {
		explorer, apiURL := startExplorer(t)
		credential := config.VerificationCredential{APIKey: "e2e-key"}
		verifier := verification.New(apiURL, credential.APIKey,
			verification.WithPollInterval(100*time.Millisecond),
			verification.WithLogger(logger),
		)

		var depths []uint64
		orch := orchestrator.New(client, verifier, orchestrator.Target{
			Network:    profile,
			Credential: credential,
			Artifact:   artifact,
		},
			orchestrator.WithLogger(logger),
			orchestrator.WithOutput(io.Discard),
			orchestrator.WithConfirmTimeout(time.Minute),
			orchestrator.WithObserver(func(ev orchestrator.Event) {
				if ev.Confirmations > 0 {
					depths = append(depths, ev.Confirmations)
				}
			}),
		)

		rec, err := orch.Run(ctx)
		require.NoError(t, err)

		assert.Equal(t, orchestrator.StateDone, rec.State)
		assert.True(t, rec.Verified)
		assert.GreaterOrEqual(t, rec.ConfirmationsObserved, orchestrator.VerifyConfirmations)
		assert.Contains(t, depths, orchestrator.VerifyConfirmations)
		assert.Equal(t, []string{"getsourcecode", "verifysourcecode", "checkverifystatus"}, explorer.recorded())
	})
}

func TestDial_ChainIDMismatch(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rpcURL := startAnvil(ctx, t)

	_, err := evm.Dial(ctx, rpcURL, 1, anvilKey)
	assert.ErrorIs(t, err, evm.ErrChainIDMismatch)
}
