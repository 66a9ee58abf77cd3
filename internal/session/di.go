package session

import (
	"github.com/foxseedlab/voicedesk/internal/audio"
	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/metrics"
	"github.com/foxseedlab/voicedesk/internal/repository"
	"github.com/foxseedlab/voicedesk/internal/token"
	"github.com/foxseedlab/voicedesk/internal/transport"
	"github.com/foxseedlab/voicedesk/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		listener, err := do.Invoke[Listener](i)
		if err != nil {
			listener = NopListener{}
		}
		return NewManager(cfg, Dependencies{
			Microphone: do.MustInvoke[audio.Microphone](i),
			NewCodec:   do.MustInvoke[audio.CodecFactory](i),
			Issuer:     do.MustInvoke[token.Issuer](i),
			Transport:  do.MustInvoke[transport.Transport](i),
			Repository: do.MustInvoke[repository.Repository](i),
			Webhook:    do.MustInvoke[webhook.Sender](i),
			Metrics:    do.MustInvoke[*metrics.Metrics](i),
			Listener:   listener,
		}), nil
	})
}
