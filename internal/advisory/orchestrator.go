package advisory

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/airsense/airsense/internal/advisory/providers"
	"github.com/airsense/airsense/internal/profile"
	"github.com/airsense/airsense/internal/reading"
	"github.com/airsense/airsense/internal/store"
)

// Disclaimer is appended to every advisory response.
const Disclaimer = "Note: this is general educational information about air quality, not medical advice."

// Fixed personalization clauses, additive to the base advice.
const (
	clauseRespiratory = "Since someone in your household has a respiratory condition, be extra cautious: keep rescue medication at hand and react early to rising values."
	clauseElderly     = "Older household members are more sensitive to poor air quality; make sure their rooms are ventilated first."
)

const blockedAnswer = "The generated answer was withheld by the provider's safety filter. Please rephrase your question."

// Source values reported in advisory metadata.
const (
	SourceLocal    = "local"
	SourceExternal = "gemini"
)

// ProfileReader is the slice of the profile store the orchestrator
// needs.
type ProfileReader interface {
	Latest(ctx context.Context) (*profile.Profile, error)
}

// TextGenerator is the external generative provider.
type TextGenerator interface {
	Configured() bool
	Generate(ctx context.Context, prompt string) (*providers.Result, error)
}

// Result is the orchestrator's answer plus response metadata.
type Result struct {
	Answer         string
	Tips           []string
	Source         string
	Model          string
	ExternalUsed   bool
	Personalized   bool
	ProfileSummary string
	Blocked        bool
}

// Orchestrator decides between the external provider and the local rule
// engine, and post-processes the outcome with personalization and the
// fixed disclaimer.
type Orchestrator struct {
	profiles ProfileReader
	provider TextGenerator
}

// NewOrchestrator creates an Orchestrator. provider may be nil when no
// external provider is wired at all.
func NewOrchestrator(profiles ProfileReader, provider TextGenerator) *Orchestrator {
	return &Orchestrator{
		profiles: profiles,
		provider: provider,
	}
}

// Chat answers a free-text question with recent-data context.
func (o *Orchestrator) Chat(ctx context.Context, question string, latest *reading.Reading, recent []reading.Reading) (*Result, error) {
	return o.respond(ctx, question, latest, recent)
}

// Advice produces a structured lifestyle tip without a question.
func (o *Orchestrator) Advice(ctx context.Context, latest *reading.Reading, recent []reading.Reading) (*Result, error) {
	return o.respond(ctx, "", latest, recent)
}

func (o *Orchestrator) respond(ctx context.Context, question string, latest *reading.Reading, recent []reading.Reading) (*Result, error) {
	snap := BuildSnapshot(latest, recent)

	prof := o.latestProfile(ctx)

	shareExternally := prof != nil &&
		prof.Preferences.ShareWithExternal &&
		o.provider != nil &&
		o.provider.Configured()

	if shareExternally {
		res, err := o.provider.Generate(ctx, buildPrompt(question, snap, prof.RedactedSummary()))

		var perr *providers.ProviderError
		switch {
		case err == nil && res.Blocked:
			return o.finish(&Result{
				Answer:  blockedAnswer,
				Source:  SourceExternal,
				Model:   res.Model,
				Blocked: true,
			}, nil), nil
		case err == nil:
			return o.finish(&Result{
				Answer:       res.Text,
				Source:       SourceExternal,
				Model:        res.Model,
				ExternalUsed: true,
			}, prof), nil
		case errors.As(err, &perr) && !perr.Retryable:
			// Non-retryable failure class surfaces to the caller.
			return nil, err
		default:
			// All candidates exhausted; fall back to the rule engine.
			log.Printf("all provider candidates exhausted, falling back locally: %v", err)
		}
	}

	advice := Advise(snap)
	return o.finish(&Result{
		Answer: advice.Text,
		Tips:   advice.Tips,
		Source: SourceLocal,
	}, prof), nil
}

// finish applies personalization and the fixed disclaimer. A blocked
// result keeps personalization off but still carries the disclaimer.
func (o *Orchestrator) finish(res *Result, prof *profile.Profile) *Result {
	if prof != nil {
		res.ProfileSummary = prof.RedactedSummary()

		var clauses []string
		if prof.HasRespiratoryCondition() {
			clauses = append(clauses, clauseRespiratory)
		}
		if prof.HasElderlyMember() {
			clauses = append(clauses, clauseElderly)
		}
		if len(clauses) > 0 {
			res.Answer = res.Answer + " " + strings.Join(clauses, " ")
			res.Personalized = true
		}
	}

	res.Answer = res.Answer + "\n\n" + Disclaimer
	return res
}

func (o *Orchestrator) latestProfile(ctx context.Context) *profile.Profile {
	if o.profiles == nil {
		return nil
	}
	prof, err := o.profiles.Latest(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("failed to read household profile: %v", err)
		}
		return nil
	}
	return prof
}

// buildPrompt renders the provider request text: the question (when
// present), the advisory context, and the redacted household summary.
// Raw structured profile data never goes into the prompt.
func buildPrompt(question string, snap *Snapshot, summary string) string {
	var sb strings.Builder

	sb.WriteString("You are an indoor air quality assistant. Answer briefly and practically.\n\n")

	if snap.Latest != nil {
		l := snap.Latest
		fmt.Fprintf(&sb, "Current readings: PM2.5 %.1f (%s), VOC %.1f (%s), ethanol %.1f (%s), CO %.1f (%s). ",
			l.PM25, snap.PM25Category, l.VOC, snap.VOCCategory, l.Ethanol, snap.EthanolCategory, l.CO, snap.COCategory)
		fmt.Fprintf(&sb, "Predicted IAQ %.1f (%s).\n", l.PredictedIAQ, snap.IAQBand)
	}
	fmt.Fprintf(&sb, "Trends: PM2.5 %s, VOC %s, CO %s, IAQ %s.\n", snap.PM25Trend, snap.VOCTrend, snap.COTrend, snap.IAQTrend)

	if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}

	if question != "" {
		sb.WriteString("\nQuestion: ")
		sb.WriteString(question)
	} else {
		sb.WriteString("\nGive one concrete lifestyle tip to improve or maintain indoor air quality right now.")
	}

	return sb.String()
}
