package media

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/irdkwmnsb/webrtc-grabber/packages/viewer/internal/api"
	"github.com/valyala/fasthttp"
)

const rtcConfigTimeout = 10 * time.Second

// FetchRTCConfig downloads {"iceServers": [...]} from url.
func FetchRTCConfig(url string) (api.PeerConnectionConfig, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")

	if err := fasthttp.DoTimeout(req, resp, rtcConfigTimeout); err != nil {
		return api.PeerConnectionConfig{}, fmt.Errorf("rtc-config request failed: %w", err)
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return api.PeerConnectionConfig{}, fmt.Errorf("rtc-config bad status: %d", resp.StatusCode())
	}

	var cfg api.PeerConnectionConfig
	if err := json.Unmarshal(resp.Body(), &cfg); err != nil {
		return api.PeerConnectionConfig{}, fmt.Errorf("decode rtc-config: %w", err)
	}
	if len(cfg.ICEServers) == 0 {
		return api.PeerConnectionConfig{}, fmt.Errorf("rtc-config has no ice servers")
	}
	return cfg, nil
}
