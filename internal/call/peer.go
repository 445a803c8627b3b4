package call

import (
	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/BioHazard786/Warpcall/internal/config"
)

// NewAPI builds a pion API with the default codecs and interceptors, logging
// through loggerFactory. configure, if set, can adjust the setting engine
// before the API is built.
func NewAPI(loggerFactory logging.LoggerFactory, configure func(*webrtc.SettingEngine)) (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, NewError("register interceptors", err)
	}

	se := webrtc.SettingEngine{}
	if loggerFactory != nil {
		se.LoggerFactory = loggerFactory
	}
	if configure != nil {
		configure(&se)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(i),
		webrtc.WithSettingEngine(se),
	), nil
}

// ICEConfiguration turns the configured STUN and TURN servers into a peer
// connection configuration.
func ICEConfiguration(cfg *config.Config) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stun})
	}

	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turnServers != nil && (cfg.ForceRelay || ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

func NewPeerConnection(api *webrtc.API, cfg *config.Config) (*webrtc.PeerConnection, error) {
	pc, err := api.NewPeerConnection(ICEConfiguration(cfg))
	if err != nil {
		return nil, NewError("create peer connection", err)
	}
	return pc, nil
}
