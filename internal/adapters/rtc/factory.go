// Package rtc wraps pion's PeerConnection behind the core media interfaces.
package rtc

import (
	"github.com/pion/webrtc/v4"

	"github.com/Banula-Lavindu/Luster-backend/internal/core"
	"github.com/Banula-Lavindu/Luster-backend/internal/domain"
)

// Factory builds one peer connection per call session, sharing the ICE
// server configuration and the logging setup.
type Factory struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

func NewFactory(cfg webrtc.Configuration) *Factory {
	se := webrtc.SettingEngine{}
	se.LoggerFactory = &loggerFactory{}
	return &Factory{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(se)),
		cfg: cfg,
	}
}

func (f *Factory) NewConnection(id domain.CallID) (core.MediaConnection, error) {
	pc, err := f.api.NewPeerConnection(f.cfg)
	if err != nil {
		return nil, err
	}
	return &Connection{pc: pc, id: id}, nil
}
