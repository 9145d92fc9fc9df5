package orchestrator

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// dashNameRe matches the dash-case convention the auto-rename draft must
// produce (spec §4.4 "Auto-rename draft"): lowercase letters, digits, and
// dashes, 1-48 chars.
var dashNameRe = regexp.MustCompile(`^[a-z0-9-]{1,48}$`)

// Namer proposes a dash-case drone name from an initial prompt. DroneHub
// has no opinion on what model or service backs it; callers inject their
// own implementation.
type Namer func(ctx context.Context, prompt string) (string, error)

// maxAutoRenameRetries bounds the numeric-suffix retry loop below.
const maxAutoRenameRetries = 5

// AutoRenameDraft asks namer for a name derived from initialPrompt and
// returns the first available dash-case candidate, appending numeric
// suffixes on conflict. It returns "" if namer's output is never usable or
// every retry collides with a live drone name -- auto-naming is advisory,
// never fatal to drone creation (spec §4.4).
func (o *Orchestrator) AutoRenameDraft(ctx context.Context, namer Namer, initialPrompt string) string {
	if namer == nil {
		return ""
	}

	raw, err := namer(ctx, initialPrompt)
	if err != nil {
		o.log.Warn("auto-rename draft call failed", "error", err)
		return ""
	}

	candidate := strings.ToLower(strings.TrimSpace(raw))
	if !dashNameRe.MatchString(candidate) {
		return ""
	}
	if !o.reg.IsNameLive(candidate) {
		return candidate
	}

	for i := 2; i <= maxAutoRenameRetries+1; i++ {
		suffixed := candidate + "-" + strconv.Itoa(i)
		if len(suffixed) > 48 {
			break
		}
		if !o.reg.IsNameLive(suffixed) {
			return suffixed
		}
	}
	return ""
}
