package dispatch

import "strings"

// FormatTranscript renders turns as "Agent: ..." / "Driver: ..." lines for prompts.
func FormatTranscript(turns []Turn) string {
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleAgent:
			lines = append(lines, "Agent: "+t.Text)
		case RoleDriver:
			lines = append(lines, "Driver: "+t.Text)
		}
	}
	return strings.Join(lines, "\n")
}

// ParseTranscript recovers turns from the platform's plain-text transcript,
// where each utterance is a line prefixed with "Agent:" or "User:".
// Lines without a known prefix continue the previous utterance.
func ParseTranscript(raw string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		role, text, ok := splitSpeaker(line)
		if !ok {
			if len(turns) > 0 {
				turns[len(turns)-1].Text += " " + line
			}
			continue
		}
		turns = append(turns, Turn{Seq: len(turns), Role: role, Text: text})
	}
	return turns
}

func splitSpeaker(line string) (Role, string, bool) {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return "", "", false
	}
	switch strings.ToLower(strings.TrimSpace(line[:idx])) {
	case "agent", "assistant":
		return RoleAgent, strings.TrimSpace(line[idx+1:]), true
	case "user", "driver":
		return RoleDriver, strings.TrimSpace(line[idx+1:]), true
	}
	return "", "", false
}

// CountRole returns how many turns were authored by role.
func CountRole(turns []Turn, role Role) int {
	n := 0
	for _, t := range turns {
		if t.Role == role {
			n++
		}
	}
	return n
}
