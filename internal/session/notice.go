package session

type NoticeKind string

const (
	// NoticeCapture means the microphone could not be used.
	NoticeCapture NoticeKind = "capture"
	// NoticeConnection means the call never happened.
	NoticeConnection NoticeKind = "connection"
	// NoticeTransport is a non-fatal failure of a live call.
	NoticeTransport NoticeKind = "transport"
	// NoticeSave means the call happened but its record was not saved.
	NoticeSave  NoticeKind = "save"
	NoticeSaved NoticeKind = "saved"
)

type Notice struct {
	Kind    NoticeKind
	Message string
	Err     error
}

// Listener receives callbacks from the manager's goroutines. Implementations
// must not block.
type Listener interface {
	OnNotice(Notice)
	OnMessage(Message)
	OnOutcome(Outcome)
}

type NopListener struct{}

func (NopListener) OnNotice(Notice)   {}
func (NopListener) OnMessage(Message) {}
func (NopListener) OnOutcome(Outcome) {}
