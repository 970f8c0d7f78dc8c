package server

import (
	"context"
	"time"

	"github.com/objectfs/gateway/internal/config"
	"github.com/objectfs/gateway/pkg/api"
)

// BuildInfo identifies the binary. Values are injected at link time.
type BuildInfo struct {
	Hash string
	Time string
}

// infoService reports what this instance is and how long it has run
type infoService struct {
	config  config.InfoConfig
	version string
	build   BuildInfo
	started time.Time
	now     func() time.Time
	runtime func() map[string]int64
}

var _ api.InfoServer = (*infoService)(nil)

func newInfoService(cfg config.InfoConfig, version string, build BuildInfo) *infoService {
	return &infoService{
		config:  cfg,
		version: version,
		build:   build,
		started: time.Now(),
		now:     time.Now,
	}
}

func (i *infoService) snapshot() *api.InfoResponse {
	uptime := int64(i.now().Sub(i.started) / time.Second)

	labels := make(map[string]string, len(i.config.Labels))
	for k, v := range i.config.Labels {
		labels[k] = v
	}

	return &api.InfoResponse{
		AppName:       i.config.AppName,
		InstanceID:    i.config.InstanceID,
		Host:          i.config.Host,
		Version:       i.version,
		UptimeSeconds: uptime,
		Labels:        labels,
		Metrics:       i.metrics(uptime),
		BuildHash:     i.build.Hash,
		BuildTime:     i.build.Time,
	}
}

func (i *infoService) metrics(uptime int64) map[string]int64 {
	m := map[string]int64{}
	if i.runtime != nil {
		for k, v := range i.runtime() {
			m[k] = v
		}
	}
	m["uptime_sec"] = uptime
	return m
}

func (i *infoService) All(context.Context, *api.InfoRequest) (*api.InfoResponse, error) {
	return i.snapshot(), nil
}
