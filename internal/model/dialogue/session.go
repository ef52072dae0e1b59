package dialogue

import (
	"time"

	"github.com/zhouzirui/voicebank/backend/internal/model/banking"
)

// Phase is the controller's internal position in a turn.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseSpeaking   Phase = "speaking"
)

// AvatarState is the coarse state shown to the user.
type AvatarState string

const (
	AvatarIdle      AvatarState = "idle"
	AvatarListening AvatarState = "listening"
	AvatarSpeaking  AvatarState = "speaking"
)

// Avatar maps a phase onto what the avatar displays. Processing is shown
// as listening.
func (p Phase) Avatar() AvatarState {
	switch p {
	case PhaseListening, PhaseProcessing:
		return AvatarListening
	case PhaseSpeaking:
		return AvatarSpeaking
	case PhaseIdle:
		return AvatarIdle
	}
	return AvatarIdle
}

// Session is the conversation context of one authenticated user.
type Session struct {
	ID             string                `json:"id"`
	Token          string                `json:"-"`
	Voice          string                `json:"voice"`
	Phase          Phase                 `json:"phase"`
	AvatarState    AvatarState           `json:"avatarState"`
	Pending        PendingOperation      `json:"pending"`
	AwaitingSlots  bool                  `json:"awaitingSlots"`
	Slots          map[string]string     `json:"slots"`
	LastTranscript string                `json:"lastTranscript"`
	Account        *banking.Account      `json:"account,omitempty"`
	Transactions   []banking.Transaction `json:"transactions"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// Clone returns a deep copy safe to hand outside the controller.
func (s Session) Clone() Session {
	out := s
	out.Slots = make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}
	if s.Account != nil {
		acct := *s.Account
		out.Account = &acct
	}
	out.Transactions = append([]banking.Transaction(nil), s.Transactions...)
	if s.Pending.Required != nil {
		out.Pending.Required = append([]string(nil), s.Pending.Required...)
	}
	out.AvatarState = s.Phase.Avatar()
	out.AwaitingSlots = s.Phase == PhaseIdle && s.Pending.Active()
	return out
}

// Source records how a turn was started.
type Source string

const (
	SourceVoice       Source = "voice"
	SourceQuickAction Source = "quick_action"
	SourceSlots       Source = "slots"
)

// Utterance is the immutable record of one turn's input.
type Utterance struct {
	Text       string    `json:"text"`
	Intent     Intent    `json:"intent"`
	Source     Source    `json:"source"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

// NoticeLevel classifies a user-facing notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is a short message surfaced to the user outside the spoken channel.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}
