// Package prompt builds tier-appropriate prompts. Each cognitive tier
// gets a different slice of identity and memory, sized for the tier's
// context budget.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mindmesh/mindmesh/pkg/models"
)

// IdentityDepth selects how much of an agent's profile goes into a prompt.
type IdentityDepth string

const (
	IdentityMinimal IdentityDepth = "minimal"
	IdentityBrief   IdentityDepth = "brief"
	IdentityFull    IdentityDepth = "full"
)

// ProfileProvider supplies agent identity text at a requested depth.
// Backed by whatever stores agent profiles; the engine only needs the
// formatted strings.
type ProfileProvider interface {
	Identity(agentID string, depth IdentityDepth) string
	SocialStyle(agentID string) string
}

// MemoryProvider supplies recalled context for a stimulus. Depth follows
// the tier's memory access level.
type MemoryProvider interface {
	Recall(agentID, stimulus string, depth models.MemoryAccess) string
}

// Context carries the optional extra material woven into deeper prompts.
type Context struct {
	RecentTurns   string
	PriorThoughts []models.Thought
}

// Builder assembles prompts from the tier table, profile and memory.
type Builder struct {
	profiles ProfileProvider
	memory   MemoryProvider
}

// NewBuilder wires a Builder. Nil providers degrade to static defaults.
func NewBuilder(profiles ProfileProvider, memory MemoryProvider) *Builder {
	if profiles == nil {
		profiles = StaticProfiles{}
	}
	if memory == nil {
		memory = NoMemory{}
	}
	return &Builder{profiles: profiles, memory: memory}
}

// Build renders the prompt for one step execution.
func (b *Builder) Build(cfg models.TierConfig, agentID, stimulus, purpose string, ctx Context) string {
	switch cfg.Tier {
	case models.TierReflex:
		return fmt.Sprintf("%s\n\nSTIMULUS: %s\n\nIMMEDIATE REACTION (one brief thought):",
			b.profiles.Identity(agentID, IdentityMinimal), stimulus)

	case models.TierReactive:
		var sb strings.Builder
		sb.WriteString(b.profiles.Identity(agentID, IdentityBrief))
		if ctx.RecentTurns != "" {
			sb.WriteString("\n\nRECENT CONTEXT:\n")
			sb.WriteString(ctx.RecentTurns)
		}
		fmt.Fprintf(&sb, "\n\nSITUATION: %s\n\nPURPOSE: %s\n\nYour quick assessment (2-3 sentences):", stimulus, purpose)
		return sb.String()

	default:
		return b.buildDeep(cfg, agentID, stimulus, purpose, ctx)
	}
}

func (b *Builder) buildDeep(cfg models.TierConfig, agentID, stimulus, purpose string, ctx Context) string {
	sections := []string{b.profiles.Identity(agentID, IdentityFull)}

	if style := b.profiles.SocialStyle(agentID); style != "" {
		sections = append(sections, "YOUR SOCIAL STYLE:\n"+style)
	}
	if recalled := b.memory.Recall(agentID, stimulus, cfg.MemoryAccess); recalled != "" {
		sections = append(sections, "RELEVANT MEMORY:\n"+recalled)
	}
	if prior := formatPriorThoughts(ctx.PriorThoughts); prior != "" {
		sections = append(sections, "YOUR THINKING SO FAR:\n"+prior)
	}

	sections = append(sections,
		"SITUATION:\n"+stimulus,
		"PURPOSE: "+purpose,
	)

	switch cfg.Tier {
	case models.TierAnalytical:
		sections = append(sections, `Provide thorough analysis:
1. What's really going on here?
2. What do I know that's relevant?
3. What patterns apply?
4. What are the risks/opportunities?
5. What's my considered position?`)
	case models.TierComprehensive:
		sections = append(sections, `Provide comprehensive analysis:
1. What's really going on here? Consider multiple perspectives.
2. What do I know that's relevant? Draw from all my experience.
3. What patterns apply?
4. What are the risks and opportunities? Be thorough.
5. What's my considered position? Support with reasoning.
6. What would I recommend as next steps?`)
	default:
		sections = append(sections, "Provide your considered thoughts:")
	}

	return strings.Join(sections, "\n\n")
}

// formatPriorThoughts renders the last few thoughts as prompt context.
func formatPriorThoughts(thoughts []models.Thought) string {
	if len(thoughts) == 0 {
		return ""
	}
	lines := make([]string, 0, len(thoughts))
	for _, t := range thoughts {
		lines = append(lines, fmt.Sprintf("- [%s] %s", t.Type, t.Content))
	}
	return strings.Join(lines, "\n")
}

// ── Default providers ────────────────────────────────────────

// StaticProfiles is the fallback ProfileProvider when no profile store
// is wired: a generic assistant identity at every depth.
type StaticProfiles struct{}

func (StaticProfiles) Identity(agentID string, depth IdentityDepth) string {
	switch depth {
	case IdentityMinimal:
		return fmt.Sprintf("You are %s, an autonomous agent.", agentID)
	case IdentityBrief:
		return fmt.Sprintf("You are %s, an autonomous agent.\nYou respond quickly and practically.", agentID)
	default:
		return fmt.Sprintf("IDENTITY:\nYou are %s, an autonomous agent.\nYou think carefully and communicate clearly.", agentID)
	}
}

func (StaticProfiles) SocialStyle(agentID string) string { return "" }

// NoMemory is the fallback MemoryProvider: recall always comes back empty.
type NoMemory struct{}

func (NoMemory) Recall(agentID, stimulus string, depth models.MemoryAccess) string { return "" }
