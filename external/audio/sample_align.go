package audio

// sampleAligner holds back a trailing odd byte so that s16le samples never
// straddle two chunks.
type sampleAligner struct {
	pending []byte
}

func (a *sampleAligner) align(pcm []byte) []byte {
	if len(a.pending) > 0 {
		pcm = append(a.pending, pcm...)
		a.pending = nil
	}
	if len(pcm)%2 != 0 {
		a.pending = []byte{pcm[len(pcm)-1]}
		pcm = pcm[:len(pcm)-1]
	}
	return pcm
}
