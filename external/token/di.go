package token

import (
	"net/http"

	"github.com/foxseedlab/voicedesk/internal/config"
	"github.com/foxseedlab/voicedesk/internal/token"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (token.Issuer, error) {
		c := do.MustInvoke[*config.Config](i)
		return NewHTTPIssuer(c.TokenEndpointURL, &http.Client{Timeout: c.HTTPTimeout()}), nil
	})
}
