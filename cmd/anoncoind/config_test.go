package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btclog"
	flags "github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"

	"anoncoin/internal/netparams"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "anoncoind.json")

	t.Run("writes defaults", func(t *testing.T) {
		cfg, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, DefaultConfig().Listen, cfg.Listen)
		_, err = os.Stat(path)
		require.NoError(t, err)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Listen = "127.0.0.1:9999"
		cfg.RateBurst = 7
		require.NoError(t, SaveConfig(cfg, path))

		got, err := LoadConfig(path)
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9999", got.Listen)
		require.Equal(t, 7, got.RateBurst)
		require.Equal(t, DefaultConfig().TimeoutSeconds, got.TimeoutSeconds)
	})

	t.Run("flags override file", func(t *testing.T) {
		cfg, err := loadConfig([]string{"-C", path, "--rateburst", "3", "--regtest"})
		require.NoError(t, err)
		require.Equal(t, "127.0.0.1:9999", cfg.Listen)
		require.Equal(t, 3, cfg.RateBurst)
		require.True(t, cfg.Regtest)
		require.Equal(t, netparams.RegTest.SigmaCoinsPerGroup, cfg.Limits().SigmaCoinsPerGroup)
		require.Equal(t, netparams.RegTest.SparkCoinsPerGroup, cfg.Limits().SparkCoinsPerGroup)
		require.Equal(t, netparams.RegTest.MaxMintsPerBlock, cfg.Limits().MaxMintsPerBlock)
	})

	t.Run("version skips the file", func(t *testing.T) {
		missing := filepath.Join(dir, "missing.json")
		cfg, err := loadConfig([]string{"-V", "-C", missing})
		require.NoError(t, err)
		require.True(t, cfg.ShowVersion)
		_, err = os.Stat(missing)
		require.True(t, errors.Is(err, os.ErrNotExist))
	})

	t.Run("help", func(t *testing.T) {
		_, err := loadConfig([]string{"-h"})
		var flagErr *flags.Error
		require.ErrorAs(t, err, &flagErr)
		require.Equal(t, flags.ErrHelp, flagErr.Type)
	})
}

func TestConfigValidate(t *testing.T) {
	for name, mutate := range map[string]func(c *Config){
		"no listen":          func(c *Config) { c.Listen = "" },
		"no datadir":         func(c *Config) { c.DataDir = "" },
		"negative workers":   func(c *Config) { c.MaxConcurrency = -1 },
		"zero timeout":       func(c *Config) { c.TimeoutSeconds = 0 },
		"zero rate":          func(c *Config) { c.RateLimit = 0 },
		"zero event buffer":  func(c *Config) { c.EventBuffer = 0 },
		"audit without path": func(c *Config) { c.AuditLogPath = "" },
		"no log rotation":    func(c *Config) { c.MaxLogFiles = 0 },
		"group too large": func(c *Config) {
			c.Regtest = false
			c.SparkCoinsPerGroup = 1 << 20
		},
		"no spend inputs": func(c *Config) { c.MaxSpendInputsPerBlock = 0 },
		"no mints": func(c *Config) {
			c.Regtest = false
			c.MaxMintsPerBlock = 0
		},
		"mints overflow the sigma set": func(c *Config) {
			c.Regtest = false
			c.MaxMintsPerBlock = 16384 - c.SigmaCoinsPerGroup + 2
		},
	} {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Regtest = true
			require.NoError(t, cfg.Validate())
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = "/var/lib/anoncoin"
	require.Equal(t, "/var/lib/anoncoin/ledger.db", cfg.DBPath())

	cfg.Regtest = true
	sigmaCtx, sparkParams := cfg.Params()
	require.Equal(t, 16, sigmaCtx.Params().MaxSetSize())
	require.Equal(t, 16, sparkParams.CoverSetSize())
	require.Same(t, sigmaCtx, netparams.RegTest.Sigma())
}

func TestClientRateLimiter(t *testing.T) {
	l := NewClientRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)

	require.True(t, l.AllowAt("a", now))
	require.True(t, l.AllowAt("a", now))
	require.False(t, l.AllowAt("a", now))
	require.True(t, l.AllowAt("b", now), "clients have separate buckets")

	require.True(t, l.AllowAt("a", now.Add(time.Second)))
	require.Equal(t, 2, l.Clients())

	require.Equal(t, 1, l.Prune(now.Add(500*time.Millisecond)))
	require.Equal(t, 1, l.Clients())
	require.Equal(t, 0, l.Prune(now))
}

func TestHealthChecker(t *testing.T) {
	height := int32(7)
	hc := NewHealthChecker("test", func() int32 { return height })

	hc.RegisterComponent("b", func() error { return nil })
	hc.RegisterComponent("a", func() error { return nil })
	h := hc.CheckHealth()
	require.Equal(t, Healthy, h.OverallStatus)
	require.Equal(t, int32(7), h.Height)
	require.Equal(t, "a", h.Components[0].Name)
	require.Equal(t, "success", CreateHealthResponse(h).Status)

	hc.RegisterComponent("c", func() error { return errDegraded })
	h = hc.CheckHealth()
	require.Equal(t, Degraded, h.OverallStatus)
	require.Equal(t, "warning", CreateHealthResponse(h).Status)

	hc.RegisterComponent("a", func() error { return errors.New("down") })
	h = hc.CheckHealth()
	require.Equal(t, Unhealthy, h.OverallStatus)
	require.Equal(t, "down", h.Components[0].Message)
	require.Equal(t, "error", CreateHealthResponse(h).Status)
}

func TestSetLogLevels(t *testing.T) {
	t.Cleanup(func() { require.NoError(t, setLogLevels("info")) })

	require.NoError(t, setLogLevels("debug"))
	require.NoError(t, setLogLevels("LDGR=trace,SRVR=warn"))
	require.Equal(t, btclog.LevelTrace, ldgrLog.Level())
	require.Equal(t, btclog.LevelWarn, srvrLog.Level())

	require.Error(t, setLogLevels("loud"))
	require.Error(t, setLogLevels("NOPE=debug"))
	require.Error(t, setLogLevels("LDGR"))
	require.Contains(t, supportedSubsystems(), "SIGM")
}

func TestAuditLog(t *testing.T) {
	var nilLog *AuditLog
	nilLog.Record("ignored", nil)
	require.NoError(t, nilLog.Close())

	path := filepath.Join(t.TempDir(), "audit", "audit.log")
	a, err := NewAuditLog(path, 1024, 2)
	require.NoError(t, err)
	a.Record("BLOCK_DISCONNECTED", map[string]interface{}{"height": 3})
	require.NoError(t, a.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), "AUDIT: BLOCK_DISCONNECTED")
}
