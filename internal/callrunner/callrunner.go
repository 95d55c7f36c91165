// Package callrunner assembles the real-time conversational pipeline from
// §4.2/§4.3/§4.4: a per-call goroutine that drains telephony.Adapter's
// event stream through voice-activity detection into an audiobridge.Bridge,
// hands flushed utterances to pipeline.Runner for STT, drives the turn
// through conversation.Machine, synthesizes the reply, and plays it back
// with barge-in support. Grounded on the teacher's pkg/api/websocket.go
// duplex connection-owning goroutine, generalized from a text relay to
// the full audio turn loop.
package callrunner

import (
	"context"
	"log/slog"
	"sync"

	"github.com/snarg/fieldops/internal/apperr"
	"github.com/snarg/fieldops/internal/audiobridge"
	"github.com/snarg/fieldops/internal/conversation"
	"github.com/snarg/fieldops/internal/domain"
	"github.com/snarg/fieldops/internal/jobservice"
	"github.com/snarg/fieldops/internal/metrics"
	"github.com/snarg/fieldops/internal/notify"
	"github.com/snarg/fieldops/internal/pipeline"
	"github.com/snarg/fieldops/internal/session"
	"github.com/snarg/fieldops/internal/telephony"
	"github.com/snarg/fieldops/internal/triage"
)

// Runner owns the call turn loop. One Runner is shared by every concurrent
// call; Handle is safe to invoke from many goroutines at once, one per
// live call, matching the Supervisor's own concurrency model.
type Runner struct {
	Adapter    telephony.Adapter
	Pipeline   *pipeline.Runner
	Supervisor *session.Supervisor
	Profiles   *conversation.Registry
	Jobs       *jobservice.Service
	Triage     *triage.Engine
	Notifier   notify.Notifier
	Metrics    *metrics.Registry

	// LanguageHint is passed to STT as a dialect hint (§4.3).
	LanguageHint string

	// VADThreshold overrides DefaultVADThreshold when non-zero.
	VADThreshold int

	// EmergencyDestination is dialed on an emergency escalation, per
	// spec.md's worked example ("initiates a transfer attempt"). Empty
	// disables the transfer attempt — the critical prompt still plays.
	EmergencyDestination string

	log *slog.Logger
}

// New constructs a Runner ready to Handle calls.
func New(adapter telephony.Adapter, pl *pipeline.Runner, sup *session.Supervisor, profiles *conversation.Registry, jobs *jobservice.Service, eng *triage.Engine, notifier notify.Notifier, reg *metrics.Registry) *Runner {
	return &Runner{
		Adapter:    adapter,
		Pipeline:   pl,
		Supervisor: sup,
		Profiles:   profiles,
		Jobs:       jobs,
		Triage:     eng,
		Notifier:   notifier,
		Metrics:    reg,
		log:        slog.With("component", "callrunner"),
	}
}

func (r *Runner) vadThreshold() int {
	if r.VADThreshold > 0 {
		return r.VADThreshold
	}
	return DefaultVADThreshold
}

// Handle blocks for the lifetime of one call, wiring Events → VAD →
// audiobridge.Bridge → STT → conversation.Machine.Turn → TTS → Play, per
// §4.2–§4.4. Intended to be launched from the HTTP handler that accepted
// the call's WebSocket connection, which must itself block to keep the
// hijacked connection alive.
func (r *Runner) Handle(ctx context.Context, tenantID, callID, profileName string) error {
	profile, ok := r.Profiles.Get(profileName)
	if !ok {
		return apperr.New(apperr.KindValidation, "", "unknown conversation profile: "+profileName)
	}

	if err := r.Adapter.Answer(ctx, callID); err != nil {
		return err
	}

	sess, err := r.Supervisor.Open(session.Descriptor{TenantID: tenantID, Channel: session.ChannelPhone, CallID: callID, Profile: profile})
	if err != nil {
		_ = r.Adapter.Hangup(ctx, callID, "overloaded")
		return err
	}

	events, err := r.Adapter.Events(callID)
	if err != nil {
		r.Supervisor.Close(sess.ID, session.ReasonError)
		return err
	}

	callCtx, cancel := context.WithCancel(ctx)
	sess.SetCancel(cancel)
	defer cancel()

	sess.Machine.JobCreator = r.jobCreator(tenantID, sess, profile)

	var wg sync.WaitGroup
	var bridge *audiobridge.Bridge
	bridge = audiobridge.New(func(u audiobridge.Utterance) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.handleUtterance(callCtx, callID, sess, bridge, u)
		}()
	}, r.Metrics)

	reason := session.ReasonNormal
loop:
	for {
		select {
		case <-ctx.Done():
			reason = session.ReasonSupervisor
			break loop
		case ev, ok := <-events:
			if !ok {
				break loop
			}
			switch ev.Kind {
			case telephony.EventAudioFrame:
				sess.Touch()
				bridge.FeedAudio(ev.PCM, isSpeechFrame(ev.PCM, r.vadThreshold()), ev.Timestamp)
			case telephony.EventCallEnded:
				break loop
			case telephony.EventDTMF, telephony.EventCallAnswered:
				sess.Touch()
			}
		}
	}

	wg.Wait()
	r.Supervisor.Close(sess.ID, reason)
	return nil
}

// handleUtterance runs one STT→Turn→TTS cycle for a flushed utterance. A
// non-final utterance (flushed early by the thinking-flush cap) is
// transcribed so the rolling transcript stays current, but does not yet
// produce a spoken turn — the caller is still talking.
func (r *Runner) handleUtterance(ctx context.Context, callID string, sess *session.Session, bridge *audiobridge.Bridge, u audiobridge.Utterance) {
	transcript, err := r.Pipeline.Transcribe(ctx, u.PCM, r.LanguageHint)
	if err != nil {
		r.log.Warn("transcription failed", "call_id", callID, "error", err)
		if apperr.KindOf(err) == apperr.KindProviderTransient || apperr.KindOf(err) == apperr.KindProviderFatal {
			r.speak(ctx, callID, bridge, "Sorry, I'm having trouble hearing you. Could you say that again?", false)
		}
		return
	}
	if !u.Final {
		sess.Machine.History = append(sess.Machine.History, pipeline.Message{Role: "user", Content: transcript.Text})
		return
	}

	result := sess.Machine.Turn(ctx, transcript.Text, transcript.Confidence, r.Pipeline.ConfidenceFloor)

	if result.Action != nil && r.Notifier != nil {
		go r.dispatchAction(context.Background(), sess.TenantID, sess.Machine.Slots, *result.Action)
	}

	if result.Response != "" {
		r.speak(ctx, callID, bridge, result.Response, result.Escalated)
	}

	if result.Escalated && r.EmergencyDestination != "" {
		if err := r.Adapter.Transfer(ctx, callID, r.EmergencyDestination); err != nil {
			r.log.Warn("emergency transfer failed", "call_id", callID, "error", err)
		}
		return
	}

	if result.JobCreated || result.NextState == conversation.StateFarewell {
		if err := r.Adapter.Hangup(ctx, callID, "call_complete"); err != nil {
			r.log.Warn("hangup failed", "call_id", callID, "error", err)
		}
	}
}

// speak synthesizes text and plays it back, transitioning the bridge
// through SPEAKING with barge-in support per §4.2 (disabled for critical
// prompts, e.g. an emergency instruction that must not be interrupted).
func (r *Runner) speak(ctx context.Context, callID string, bridge *audiobridge.Bridge, text string, critical bool) {
	stream, err := r.Pipeline.Synthesize(ctx, text)
	if err != nil {
		r.log.Warn("synthesis failed", "call_id", callID, "error", err)
		return
	}
	defer stream.Close()

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	bridge.StartSpeaking(cancel, critical)
	if err := r.Adapter.Play(speakCtx, callID, stream); err != nil {
		r.log.Warn("playback failed", "call_id", callID, "error", err)
	}
	bridge.TTSDone()
}

// jobCreator builds the conversation.Machine hook that turns a completed
// slot-fill into a persisted Job, classifying urgency/trade through the
// Triage Engine rather than a fixed placeholder result.
func (r *Runner) jobCreator(tenantID string, sess *session.Session, profile *conversation.Profile) func(ctx context.Context, slots *conversation.Slots) error {
	return func(ctx context.Context, slots *conversation.Slots) error {
		if r.Jobs == nil {
			return nil
		}
		description, _ := slots.Get(conversation.SlotProblemDescription)
		draft := jobservice.Draft{Title: description, Description: description, Source: domain.SourcePhone}

		outcome := jobservice.TriageResult{Urgency: domain.UrgencyNormal, Trade: profile.DefaultTrade}
		if r.Triage != nil {
			triageCtx := triage.Context{}
			if sess.Machine.AssessedUrgency != nil && *sess.Machine.AssessedUrgency == domain.UrgencyEmergency {
				triageCtx.Vulnerability = true
			}
			classified := r.Triage.Classify(description, triageCtx)
			outcome = jobservice.TriageResult{Urgency: classified.Urgency, Trade: classified.TradeCategory, Reasoning: classified.Reasoning}
			if outcome.Trade == "" {
				outcome.Trade = profile.DefaultTrade
			}
		}

		_, err := r.Jobs.Create(ctx, tenantID, draft, outcome, "phone:"+sess.ID)
		return err
	}
}

// dispatchAction fires the profile's post-confirmation notification,
// copying the named slots into the template vars, per §4.11.
func (r *Runner) dispatchAction(ctx context.Context, tenantID string, slots *conversation.Slots, action conversation.ActionSpec) {
	vars := make(map[string]any, len(action.Vars))
	for _, key := range action.Vars {
		if v, ok := slots.Get(key); ok {
			vars[string(key)] = v
		}
	}
	if err := r.Notifier.Send(ctx, tenantID, notify.Channel(action.Channel), "", action.Template, vars); err != nil {
		r.log.Warn("post-confirm notification dispatch failed", "tenant_id", tenantID, "template", action.Template, "error", err)
	}
}
