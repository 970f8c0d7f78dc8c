package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/objectfs/gateway/internal/config"
)

func TestInfoService_Snapshot(t *testing.T) {
	cfg := config.InfoConfig{
		AppName:    "YTStorage",
		InstanceID: "node-7",
		Host:       "10.0.0.7:50070",
		Labels:     map[string]string{"rack": "r1"},
	}
	svc := newInfoService(cfg, "1.2.3", BuildInfo{Hash: "deadbeef", Time: "2024-05-01"})
	svc.now = func() time.Time { return svc.started.Add(90 * time.Second) }
	svc.runtime = func() map[string]int64 {
		return map[string]int64{"goroutines": 12, "uptime_sec": -1}
	}

	resp, err := svc.All(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "YTStorage", resp.AppName)
	assert.Equal(t, "node-7", resp.InstanceID)
	assert.Equal(t, "10.0.0.7:50070", resp.Host)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, int64(90), resp.UptimeSeconds)
	assert.Equal(t, "deadbeef", resp.BuildHash)
	assert.Equal(t, "2024-05-01", resp.BuildTime)
	assert.Equal(t, int64(90), resp.Metrics["uptime_sec"], "uptime is never overridden")
	assert.Equal(t, int64(12), resp.Metrics["goroutines"])

	resp.Labels["rack"] = "changed"
	assert.Equal(t, "r1", svc.snapshot().Labels["rack"], "labels are copied per snapshot")
}
