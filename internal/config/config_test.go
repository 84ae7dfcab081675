package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screa/d3caf/internal/crypto"
)

func TestValidateMiner(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"missing factory", Config{Solver: "0x01", Bytecode: "0x00"}, ErrNoFactorySpecified},
		{"missing bytecode", Config{Solver: "0x01", Factory: "0x02"}, ErrNoBytecodeSpecified},
		{"missing solver", Config{Factory: "0x02", BytecodeHash: "0x03"}, ErrNoSolverSpecified},
		{"submit without request", Config{Solver: "0x01", Factory: "0x02", Bytecode: "0x00", Submit: true}, ErrNoRequestSpecified},
		{"request supplies the rest", Config{Solver: "0x01", Request: "0x04", Submit: true}, nil},
		{"complete", Config{Solver: "0x01", Factory: "0x02", BytecodeFile: "code.hex"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateMiner()
			if tt.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGetBytecodeHash(t *testing.T) {
	code := []byte{0x60, 0x80, 0x60, 0x40}
	want := common.BytesToHash(crypto.Keccak256(code))

	cfg := &Config{Bytecode: "0x60806040"}
	got, err := cfg.GetBytecodeHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	file := filepath.Join(t.TempDir(), "code.hex")
	require.NoError(t, os.WriteFile(file, []byte("0x60806040\n"), 0o644))
	cfg = &Config{BytecodeFile: file}
	got, err = cfg.GetBytecodeHash()
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cfg = &Config{BytecodeHash: want.Hex(), Bytecode: "0xff"}
	got, err = cfg.GetBytecodeHash()
	require.NoError(t, err)
	assert.Equal(t, want, got, "explicit hash wins over bytecode")

	_, err = (&Config{}).GetBytecodeHash()
	assert.ErrorIs(t, err, ErrNoBytecodeSpecified)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "d3caf.yaml")
	require.NoError(t, os.WriteFile(file, []byte("listen: \":9000\"\nblock-time: 2s\nworkers: 3\n"), 0o644))
	t.Setenv("D3CAF_OWNER", "0x00000000000000000000000000000000000000a0")

	cfg, err := Load(viper.New(), file)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Listen)
	assert.Equal(t, 2*time.Second, cfg.BlockTime)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, "0x00000000000000000000000000000000000000a0", cfg.Owner)
	assert.Equal(t, 5, cfg.LogInterval, "defaults survive")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFromAddressDefaultsToSolver(t *testing.T) {
	cfg := &Config{Solver: "0x209992056d9e776f3beA884534b878b27B98cF15"}
	from, err := cfg.FromAddress()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(cfg.Solver), from)
}
