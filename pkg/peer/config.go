package peer

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

var ErrInvalidConfig = errors.New("invalid WebRTC config")

// Configuration of the peer connections.
type Config struct {
	// STUN and TURN servers.
	ICEServers []ICEServer `yaml:"iceServers"`
	// Public IP addresses of the host, announced instead of the local ones (1:1 NAT).
	PublicIPs []string `yaml:"ipAddresses"`
}

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username"`
	Credential string   `yaml:"credential"`
}

func DefaultConfig() Config {
	return Config{
		ICEServers: []ICEServer{{URLs: []string{"stun:global.stun.twilio.com:3478"}}},
	}
}

func (c Config) Validate() error {
	for _, server := range c.ICEServers {
		if len(server.URLs) == 0 {
			return fmt.Errorf("%w: ICE server without URLs", ErrInvalidConfig)
		}

		for _, url := range server.URLs {
			scheme, _, _ := strings.Cut(url, ":")
			switch scheme {
			case "stun", "stuns":
			case "turn", "turns":
				if server.Username == "" || server.Credential == "" {
					return fmt.Errorf("%w: TURN server %s needs credentials", ErrInvalidConfig, url)
				}
			default:
				return fmt.Errorf("%w: unsupported ICE server %q", ErrInvalidConfig, url)
			}
		}
	}

	for _, ip := range c.PublicIPs {
		if net.ParseIP(ip) == nil {
			return fmt.Errorf("%w: %q is not an IP address", ErrInvalidConfig, ip)
		}
	}

	return nil
}
