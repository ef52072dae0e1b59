// Package dialogue runs voice banking turns: transcription, intent
// classification, slot filling, banking operations and the spoken reply.
package dialogue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	bankmodel "github.com/zhouzirui/voicebank/backend/internal/model/banking"
	dialoguemodel "github.com/zhouzirui/voicebank/backend/internal/model/dialogue"
	speechmodel "github.com/zhouzirui/voicebank/backend/internal/model/speech"
	"github.com/zhouzirui/voicebank/backend/internal/service/banking"
	"github.com/zhouzirui/voicebank/backend/internal/service/capture"
	"github.com/zhouzirui/voicebank/backend/internal/service/intent"
	"github.com/zhouzirui/voicebank/backend/internal/telemetry"
)

// Transcriber turns a recording into text.
type Transcriber interface {
	TranscribeBuffer(ctx context.Context, sessionID string, audio []byte, format, language string) (*speechmodel.ASRResponse, error)
}

// Synthesizer turns response text into audio.
type Synthesizer interface {
	SynthesizeToBuffer(ctx context.Context, sessionID, text, voice string) (*speechmodel.TTSResponse, error)
}

// Clip is one synthesized response handed to a Player.
type Clip struct {
	ID     string
	Text   string
	Audio  []byte
	Format string
}

// Player plays a clip. The returned channel yields exactly one value when
// playback has finished (nil) or failed.
type Player interface {
	Play(ctx context.Context, clip Clip) <-chan error
}

// Notifier surfaces short messages outside the spoken channel.
type Notifier interface {
	Notify(notice dialoguemodel.Notice)
}

// StateListener observes every session change.
type StateListener interface {
	OnState(session dialoguemodel.Session)
}

// UtteranceListener is optionally implemented by a StateListener to learn
// about each classified utterance as soon as it is known.
type UtteranceListener interface {
	OnUtterance(utterance dialoguemodel.Utterance)
}

// Deps are the external collaborators of a controller.
type Deps struct {
	Transcriber Transcriber
	Classifier  intent.Classifier
	Bank        banking.Client
	Synthesizer Synthesizer
}

// Config tunes the controller.
type Config struct {
	PlaybackTimeout     time.Duration
	StatementFetchLimit int
	StatementSpeakLimit int
	Language            string
}

// TurnResult describes a completed turn.
type TurnResult struct {
	Utterance dialoguemodel.Utterance    `json:"utterance"`
	Response  string                     `json:"response,omitempty"`
	ClipID    string                     `json:"clipId,omitempty"`
	Operation *bankmodel.OperationResult `json:"operation,omitempty"`
	Session   dialoguemodel.Session      `json:"session"`
}

var errNoPlayer = errors.New("no audio output attached")

// Controller owns one conversation session. All exported methods are safe
// for concurrent use; only one turn runs at a time and overlapping turns
// are rejected with a *dialogue.BusyError.
type Controller struct {
	id    string
	token string

	mu       sync.Mutex
	session  dialoguemodel.Session
	player   Player
	notifier Notifier
	listener StateListener

	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// NewController creates a controller for a fresh session.
func NewController(id, token, voice string, deps Deps, cfg Config, logger *zap.Logger) *Controller {
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = 60 * time.Second
	}
	if cfg.StatementFetchLimit <= 0 {
		cfg.StatementFetchLimit = 5
	}
	if cfg.StatementSpeakLimit <= 0 {
		cfg.StatementSpeakLimit = DefaultStatementSpeakLimit
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewKeywordClassifier()
	}

	return &Controller{
		session: dialoguemodel.Session{
			ID:           id,
			Token:        token,
			Voice:        voice,
			Phase:        dialoguemodel.PhaseIdle,
			Slots:        map[string]string{},
			Transactions: []bankmodel.Transaction{},
			CreatedAt:    time.Now(),
		},
		id:     id,
		token:  token,
		deps:   deps,
		cfg:    cfg,
		logger: telemetry.OrNop(logger).With(zap.String("session", id)),
	}
}

// ID returns the session id.
func (c *Controller) ID() string {
	return c.id
}

// Token returns the auth token the session was created with.
func (c *Controller) Token() string {
	return c.token
}

// Attach connects the audio output and observers. Nil values detach.
func (c *Controller) Attach(player Player, notifier Notifier, listener StateListener) {
	c.mu.Lock()
	c.player = player
	c.notifier = notifier
	c.listener = listener
	c.mu.Unlock()
}

// Detach removes player and its observers if player is still the attached
// output. A newer attachment is left in place.
func (c *Controller) Detach(player Player) {
	c.mu.Lock()
	if c.player == player {
		c.player = nil
		c.notifier = nil
		c.listener = nil
	}
	c.mu.Unlock()
}

// Snapshot returns a copy of the session.
func (c *Controller) Snapshot() dialoguemodel.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// HandleRecording runs one voice turn.
func (c *Controller) HandleRecording(ctx context.Context, rec capture.Recording) (result *TurnResult, err error) {
	if err := c.begin(dialoguemodel.PhaseListening); err != nil {
		return nil, err
	}
	started := time.Now()
	turnIntent := dialoguemodel.Unknown
	defer func() { c.endTurn(dialoguemodel.SourceVoice, turnIntent, started, err) }()

	asr, err := c.deps.Transcriber.TranscribeBuffer(ctx, c.id, rec.Data, rec.Format, c.cfg.Language)
	if err != nil {
		c.logger.Warn("transcription failed", zap.String("recording", rec.ID), zap.Error(err))
		c.notify(dialoguemodel.NoticeError, "Failed to process voice command")
		return nil, dialoguemodel.NewServiceError("transcription", "transcribe", err)
	}

	text := strings.TrimSpace(asr.Text)
	c.update(func(s *dialoguemodel.Session) {
		s.LastTranscript = text
		s.Phase = dialoguemodel.PhaseProcessing
	})

	classified := c.classify(ctx, text)
	turnIntent = classified.Intent
	utterance := dialoguemodel.Utterance{
		Text:       text,
		Intent:     classified.Intent,
		Source:     dialoguemodel.SourceVoice,
		Confidence: classified.Confidence,
		At:         time.Now(),
	}
	c.logger.Info("voice turn classified",
		zap.String("transcript", text),
		zap.String("intent", string(utterance.Intent)),
		zap.Float64("confidence", utterance.Confidence),
	)
	return c.respond(ctx, utterance)
}

// QuickAction runs a turn for an intent picked directly by the user.
func (c *Controller) QuickAction(ctx context.Context, action dialoguemodel.Intent) (result *TurnResult, err error) {
	if !action.Valid() {
		return nil, &dialoguemodel.ValidationError{Fields: map[string]string{"intent": "unknown quick action " + string(action)}}
	}
	if err := c.begin(dialoguemodel.PhaseProcessing); err != nil {
		return nil, err
	}
	started := time.Now()
	defer func() { c.endTurn(dialoguemodel.SourceQuickAction, action, started, err) }()

	return c.respond(ctx, dialoguemodel.Utterance{
		Intent:     action,
		Source:     dialoguemodel.SourceQuickAction,
		Confidence: 1,
		At:         time.Now(),
	})
}

// UpdateSlots stores slot values typed by the user without submitting
// them. Names the pending operation does not use are ignored.
func (c *Controller) UpdateSlots(slots map[string]string) error {
	c.mu.Lock()
	if !c.session.Pending.Active() {
		c.mu.Unlock()
		return noPendingError()
	}
	mergeSlots(&c.session, slots)
	snap, listener := c.session.Clone(), c.listener
	c.mu.Unlock()

	publish(listener, snap)
	return nil
}

// SubmitSlots merges slots into the pending operation and, once every
// required slot is valid, executes it. A failed operation keeps the pending
// operation and speaks nothing. When the operation succeeds but the spoken
// confirmation fails, both the result and the error are returned.
func (c *Controller) SubmitSlots(ctx context.Context, slots map[string]string) (result *TurnResult, err error) {
	c.mu.Lock()
	if !c.session.Pending.Active() {
		c.mu.Unlock()
		return nil, noPendingError()
	}
	if c.session.Phase != dialoguemodel.PhaseIdle {
		phase := c.session.Phase
		c.mu.Unlock()
		telemetry.BusyRejections.Inc()
		return nil, &dialoguemodel.BusyError{Phase: phase}
	}

	mergeSlots(&c.session, slots)
	pending := c.session.Pending
	values, verr := validateSlots(pending.Kind, c.session.Slots)
	if verr == nil {
		c.session.Phase = dialoguemodel.PhaseProcessing
	}
	snap, listener := c.session.Clone(), c.listener
	c.mu.Unlock()
	publish(listener, snap)

	if verr != nil {
		c.notify(dialoguemodel.NoticeError, missingSlotsNotice(pending.Kind))
		return nil, verr
	}

	started := time.Now()
	defer func() { c.endTurn(dialoguemodel.SourceSlots, pending.CreatedBy, started, err) }()

	var (
		op        *bankmodel.OperationResult
		successes string
		spoken    string
		failed    string
	)
	switch pending.Kind {
	case dialoguemodel.PendingTransfer:
		op, err = c.deps.Bank.Transfer(ctx, c.token, bankmodel.TransferRequest{
			RecipientPhone: values.Phone,
			Amount:         values.Amount,
			Description:    "Voice transfer",
		})
		successes, spoken, failed = "Transfer successful!", TextTransferDone, "Transfer failed"
	case dialoguemodel.PendingBillPay:
		op, err = c.deps.Bank.PayBill(ctx, c.token, bankmodel.BillPaymentRequest{
			BillType:    values.BillType,
			Amount:      values.Amount,
			Description: values.BillType + " bill payment",
		})
		successes, spoken, failed = "Bill paid successfully!", TextBillDone, "Bill payment failed"
	case dialoguemodel.PendingNone:
		return nil, noPendingError()
	}

	if err != nil {
		c.logger.Warn("banking operation failed", zap.String("kind", string(pending.Kind)), zap.Error(err))
		var domainErr *dialoguemodel.DomainError
		if errors.As(err, &domainErr) {
			reason := domainErr.Reason
			if reason == "" {
				reason = failed
			}
			c.notify(dialoguemodel.NoticeError, reason)
			return nil, err
		}
		c.notify(dialoguemodel.NoticeError, failed)
		return nil, dialoguemodel.NewServiceError("banking", string(pending.Kind), err)
	}

	c.update(func(s *dialoguemodel.Session) {
		s.Pending = dialoguemodel.PendingOperation{}
		s.Slots = map[string]string{}
	})
	// Refresh notifies its own failures; the operation itself succeeded.
	if err := c.Refresh(ctx); err != nil {
		c.logger.Debug("post-operation refresh failed", zap.Error(err))
	}
	c.notify(dialoguemodel.NoticeSuccess, successes)

	utterance := dialoguemodel.Utterance{
		Intent:     pending.CreatedBy,
		Source:     dialoguemodel.SourceSlots,
		Confidence: 1,
		At:         time.Now(),
	}
	result = &TurnResult{Utterance: utterance, Response: spoken, Operation: op}
	result.ClipID, err = c.speak(ctx, spoken)
	result.Session = c.Snapshot()
	return result, err
}

// Cancel drops the pending operation and its slots.
func (c *Controller) Cancel() error {
	c.update(func(s *dialoguemodel.Session) {
		s.Pending = dialoguemodel.PendingOperation{}
		s.Slots = map[string]string{}
	})
	return nil
}

// Refresh reloads the account snapshot and recent transactions. On failure
// the cached values are kept and the user is notified.
func (c *Controller) Refresh(ctx context.Context) error {
	var errs []error
	acct, err := c.deps.Bank.GetAccount(ctx, c.token)
	if err != nil {
		c.logger.Warn("refresh account failed", zap.Error(err))
		c.notify(dialoguemodel.NoticeError, "Failed to fetch account")
		errs = append(errs, err)
	}
	txs, txErr := c.deps.Bank.ListTransactions(ctx, c.token, c.cfg.StatementFetchLimit)
	if txErr != nil {
		c.logger.Warn("refresh transactions failed", zap.Error(txErr))
		c.notify(dialoguemodel.NoticeError, "Failed to fetch transactions")
		errs = append(errs, txErr)
	}

	c.update(func(s *dialoguemodel.Session) {
		if err == nil {
			s.Account = acct
		}
		if txErr == nil {
			s.Transactions = txs
		}
	})
	return errors.Join(errs...)
}

// Reset clears the conversation at logout. Identity and voice are kept.
func (c *Controller) Reset() {
	c.update(func(s *dialoguemodel.Session) {
		*s = dialoguemodel.Session{
			ID:           s.ID,
			Token:        s.Token,
			Voice:        s.Voice,
			Phase:        dialoguemodel.PhaseIdle,
			Slots:        map[string]string{},
			Transactions: []bankmodel.Transaction{},
			CreatedAt:    s.CreatedAt,
		}
	})
}

// respond dispatches utterance, applies the decision and speaks it. The
// phase must be Processing.
func (c *Controller) respond(ctx context.Context, utterance dialoguemodel.Utterance) (*TurnResult, error) {
	c.mu.Lock()
	listener := c.listener
	c.mu.Unlock()
	if l, ok := listener.(UtteranceListener); ok {
		l.OnUtterance(utterance)
	}

	if utterance.Intent == dialoguemodel.MiniStatement {
		c.fetchStatement(ctx)
	}

	var decision Decision
	c.update(func(s *dialoguemodel.Session) {
		decision = Dispatch(utterance.Intent, *s, c.cfg.StatementSpeakLimit)
		if decision.Replace {
			s.Pending = decision.Pending
			s.Slots = map[string]string{}
		}
	})

	result := &TurnResult{Utterance: utterance, Response: decision.Response}
	clipID, err := c.speak(ctx, decision.Response)
	if err != nil {
		return nil, err
	}
	result.ClipID = clipID
	result.Session = c.Snapshot()
	return result, nil
}

func (c *Controller) fetchStatement(ctx context.Context) {
	txs, err := c.deps.Bank.ListTransactions(ctx, c.token, c.cfg.StatementFetchLimit)
	if err != nil {
		c.logger.Warn("statement fetch failed, using cached transactions", zap.Error(err))
		c.notify(dialoguemodel.NoticeError, "Failed to fetch transactions")
		return
	}
	c.update(func(s *dialoguemodel.Session) {
		s.Transactions = txs
	})
}

func (c *Controller) classify(ctx context.Context, text string) intent.Result {
	res, err := c.deps.Classifier.Classify(ctx, text)
	if err != nil {
		c.logger.Warn("classification failed, treating as unknown", zap.Error(err))
		return intent.Result{Intent: dialoguemodel.Unknown, Label: string(dialoguemodel.Unknown)}
	}
	return res
}

// speak synthesizes text and waits for the player to finish. A missing
// playback acknowledgement is given up on after the playback timeout.
func (c *Controller) speak(ctx context.Context, text string) (string, error) {
	var (
		voice  string
		player Player
	)
	c.update(func(s *dialoguemodel.Session) {
		s.Phase = dialoguemodel.PhaseSpeaking
		voice = s.Voice
	})
	c.mu.Lock()
	player = c.player
	c.mu.Unlock()

	tts, err := c.deps.Synthesizer.SynthesizeToBuffer(ctx, c.id, text, voice)
	if err != nil {
		c.logger.Warn("synthesis failed", zap.Error(err))
		c.notify(dialoguemodel.NoticeError, "Failed to play response")
		return "", dialoguemodel.NewServiceError("synthesis", "synthesize", err)
	}
	if player == nil {
		c.notify(dialoguemodel.NoticeError, "Failed to play response")
		return "", dialoguemodel.NewServiceError("playback", "play", errNoPlayer)
	}

	clip := Clip{ID: uuid.NewString(), Text: text, Audio: tts.AudioData, Format: tts.Format}
	done := player.Play(ctx, clip)

	timer := time.NewTimer(c.cfg.PlaybackTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("playback failed", zap.String("clip", clip.ID), zap.Error(err))
			c.notify(dialoguemodel.NoticeError, "Failed to play response")
			return clip.ID, dialoguemodel.NewServiceError("playback", "play", err)
		}
		return clip.ID, nil
	case <-timer.C:
		c.logger.Warn("playback acknowledgement timed out", zap.String("clip", clip.ID))
		return clip.ID, nil
	case <-ctx.Done():
		return clip.ID, dialoguemodel.NewServiceError("playback", "play", ctx.Err())
	}
}

// begin atomically moves an idle session into phase.
func (c *Controller) begin(phase dialoguemodel.Phase) error {
	c.mu.Lock()
	if c.session.Phase != dialoguemodel.PhaseIdle {
		current := c.session.Phase
		c.mu.Unlock()
		telemetry.BusyRejections.Inc()
		c.logger.Debug("turn rejected", zap.String("phase", string(current)))
		return &dialoguemodel.BusyError{Phase: current}
	}
	c.session.Phase = phase
	snap, listener := c.session.Clone(), c.listener
	c.mu.Unlock()

	publish(listener, snap)
	return nil
}

func (c *Controller) endTurn(source dialoguemodel.Source, turnIntent dialoguemodel.Intent, started time.Time, err error) {
	c.update(func(s *dialoguemodel.Session) {
		s.Phase = dialoguemodel.PhaseIdle
	})

	status := "ok"
	if err != nil {
		status = "error"
	}
	telemetry.TurnsTotal.WithLabelValues(string(source), string(turnIntent), status).Inc()
	telemetry.TurnDuration.WithLabelValues(string(source)).Observe(time.Since(started).Seconds())
}

// update mutates the session under the lock and publishes the result.
func (c *Controller) update(fn func(s *dialoguemodel.Session)) {
	c.mu.Lock()
	fn(&c.session)
	snap, listener := c.session.Clone(), c.listener
	c.mu.Unlock()

	publish(listener, snap)
}

func (c *Controller) notify(level dialoguemodel.NoticeLevel, message string) {
	c.mu.Lock()
	notifier := c.notifier
	c.mu.Unlock()
	if notifier != nil {
		notifier.Notify(dialoguemodel.Notice{Level: level, Message: message})
	}
}

func publish(listener StateListener, snap dialoguemodel.Session) {
	if listener != nil {
		listener.OnState(snap)
	}
}

func mergeSlots(s *dialoguemodel.Session, slots map[string]string) {
	if s.Slots == nil {
		s.Slots = map[string]string{}
	}
	for name, value := range slots {
		if s.Pending.Kind.Accepts(name) {
			s.Slots[name] = strings.TrimSpace(value)
		}
	}
}
