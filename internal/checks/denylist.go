package checks

import "regexp"

type denyRule struct {
	name string
	re   *regexp.Regexp
}

// denylist holds shell patterns that are never executed, whatever the
// project config says.
var denylist = []denyRule{
	{"recursive-delete-root", regexp.MustCompile(`(?i)\brm\s+(?:(?:-[a-z]+|--[a-z-]+)\s+)*(?:-[a-z]*r[a-z]*|--recursive)\s+(?:(?:-[a-z]+|--[a-z-]+)\s+)*['"]?(?:/|/\*|~/?|\$home/?|\$\{home\}/?|\*|\.\./?)['"]?(?:\s|$|;|&|\|)`)},
	{"no-preserve-root", regexp.MustCompile(`(?i)--no-preserve-root`)},
	{"privilege-escalation", regexp.MustCompile(`(?i)(?:^|[;&|(]\s*|\s)(?:sudo|su|doas|pkexec)(?:\s|$)`)},
	{"redirect-system-dir", regexp.MustCompile(`(?i)>>?\s*/(?:etc|usr|bin|sbin|boot|lib|lib64|sys|proc|root|var/lib)(?:/|\s|$)`)},
	{"redirect-block-device", regexp.MustCompile(`(?i)>>?\s*/dev/(?:sd|hd|nvme|disk|mmcblk)`)},
	{"chain-into-rm", regexp.MustCompile(`(?i)(?:;|&&?|\|\|?|\n)\s*(?:xargs\s+(?:-\S+\s+)*)?rm\s`)},
	{"pipe-into-shell", regexp.MustCompile(`(?i)\|\s*(?:sudo\s+)?(?:sh|bash|zsh|dash|ksh)(?:\s|$)`)},
	{"chain-into-shell", regexp.MustCompile(`(?i)(?:;|&&?|\|\|?|\n)\s*(?:xargs\s+(?:-\S+\s+)*)?(?:sh|bash|zsh|dash|ksh)(?:\s|$)`)},
	{"format-filesystem", regexp.MustCompile(`(?i)\bmkfs(?:\.[a-z0-9]+)?\b`)},
	{"raw-device-write", regexp.MustCompile(`(?i)\bdd\b.*\bof=/dev/`)},
	{"fork-bomb", regexp.MustCompile(`:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`)},
	{"chmod-root", regexp.MustCompile(`(?i)\bch(?:mod|own)\s+(?:-[a-z]+\s+)*\S+\s+/(?:\s|$)`)},
	{"power-state", regexp.MustCompile(`(?i)(?:^|[;&|]\s*)(?:shutdown|reboot|halt|poweroff)\b`)},
}

// Denied returns the name of the first denylist rule command matches, or
// "" when the command is allowed.
func Denied(command string) string {
	for _, r := range denylist {
		if r.re.MatchString(command) {
			return r.name
		}
	}
	return ""
}
