package transport

import (
	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/transport"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (transport.Transport, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewWebSocketTransport(c.TransportURL), nil
	})
}
