//go:build !opus

package audio

import (
	"errors"

	"github.com/foxseedlab/voicedesk/internal/audio"
)

var errOpusNotCompiled = errors.New("binary was built without the opus tag")

func NewOpusCodec(_, _ int) (audio.Codec, error) {
	return nil, errOpusNotCompiled
}
