package webhook

import (
	"net/http"

	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (webhook.Sender, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPSender(c.CallWebhookURL, &http.Client{Timeout: c.HTTPTimeout()}), nil
	})
}
