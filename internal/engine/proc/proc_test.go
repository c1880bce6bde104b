package proc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"mute/internal/config"
	"mute/internal/engine"
)

const helperEnv = "MUTE_PROC_HELPER"

func TestMain(m *testing.M) {
	if mode := os.Getenv(helperEnv); mode != "" {
		os.Exit(fakeWorker(mode, os.Stdin, os.Stdout))
	}
	goleak.VerifyTestMain(m)
}

// fakeWorker halves the energy of every particle that has more than twice the
// rest mass and reports a decay otherwise.
func fakeWorker(mode string, in io.Reader, out io.Writer) int {
	dec := json.NewDecoder(bufio.NewReader(in))
	enc := json.NewEncoder(out)
	configured := false
	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			return 0
		}
		switch req.Op {
		case opConfigure:
			if mode == "reject" {
				_ = enc.Encode(response{Error: "unsupported medium"})
				continue
			}
			configured = req.Settings != nil && req.Settings.Medium.Valid()
			_ = enc.Encode(response{OK: configured})
		case opSeed:
			_ = enc.Encode(response{OK: true})
		case opPropagate:
			if !configured {
				_ = enc.Encode(response{Error: "not configured"})
				continue
			}
			if mode == "crash" {
				return 3
			}
			e := req.State.Energy
			if e > 2*engine.MuonMass {
				_ = enc.Encode(response{Energy: e / 2, Type: engine.InteractionIonization})
			} else {
				_ = enc.Encode(response{Energy: engine.MuonMass, Type: engine.InteractionDecay})
			}
		case opClose:
			return 0
		}
	}
}

func helperArgv() []string {
	return []string{os.Args[0], "-test.run=^$"}
}

func testSettings() engine.Settings {
	cfg := config.Default()
	return engine.SettingsFor(cfg)
}

func TestEngineRoundTrip(t *testing.T) {
	ctx := context.Background()
	e, err := Start(ctx, helperArgv(), testSettings(), nil, WithEnv(helperEnv+"=ok"))
	require.NoError(t, err)
	defer func() { require.NoError(t, e.Close()) }()

	require.NoError(t, e.SetSeed(7))
	tr, err := e.Propagate(ctx, engine.State{Energy: 1000, Direction: engine.Vec3{0, 0, -1}}, 10)
	require.NoError(t, err)
	assert.InDelta(t, 500, tr.FinalEnergy, 1e-9)
	assert.Equal(t, engine.InteractionIonization, tr.FinalType)

	tr, err = e.Propagate(ctx, engine.State{Energy: 150}, 10)
	require.NoError(t, err)
	assert.Equal(t, engine.InteractionDecay, tr.FinalType)
}

func TestEngineConfigureRejected(t *testing.T) {
	_, err := Start(context.Background(), helperArgv(), testSettings(), nil, WithEnv(helperEnv+"=reject"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrEngine))
	assert.Contains(t, err.Error(), "unsupported medium")
}

func TestEngineWorkerCrash(t *testing.T) {
	ctx := context.Background()
	e, err := Start(ctx, helperArgv(), testSettings(), nil, WithEnv(helperEnv+"=crash"))
	require.NoError(t, err)
	_, err = e.Propagate(ctx, engine.State{Energy: 1000}, 1)
	require.ErrorIs(t, err, engine.ErrEngine)
	require.Error(t, e.Close())
	// closing twice is a no-op
	require.NoError(t, e.Close())
}

func TestEngineCancelledContext(t *testing.T) {
	e, err := Start(context.Background(), helperArgv(), testSettings(), nil, WithEnv(helperEnv+"=ok"))
	require.NoError(t, err)
	defer func() { _ = e.Close() }()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Propagate(ctx, engine.State{Energy: 1000}, 1)
	require.ErrorIs(t, err, context.Canceled)
}

func TestStartRequiresCommand(t *testing.T) {
	_, err := Start(context.Background(), nil, testSettings(), nil)
	require.ErrorIs(t, err, engine.ErrEngine)
}

func TestFactoryStartsWorkers(t *testing.T) {
	f := Factory(helperArgv(), nil, WithEnv(helperEnv+"=ok"))
	e, err := f(context.Background(), testSettings())
	require.NoError(t, err)
	require.NoError(t, e.Close())
}
