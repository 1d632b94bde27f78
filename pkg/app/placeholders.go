package app

import (
	"fmt"
	"strconv"
	"strings"
)

// boundPath is a filesystem-backed input or output's path inside the
// sandbox, recorded so command-line placeholders can reference it by
// position or UID.
type boundPath struct {
	uid  string
	path string
}

// urlBacked is a non-filesystem input or output, referenced by its
// dataURL.
type urlBacked struct {
	uid string
	url string
}

// substitutePlaceholders expands %iN/%oN, %i[UID]/%o[UID],
// %iDataURLN/%oDataURLN (and their [UID] forms), and
// %containerIp[OID]% references in command against the given bound
// paths, URL-backed nodes, and already-resolved peer IPs.
func substitutePlaceholders(command []string, inputs, outputs []boundPath, inputURLs, outputURLs []urlBacked, containerIPs map[string]string) ([]string, error) {
	out := make([]string, len(command))
	for i, arg := range command {
		resolved, err := substituteArg(arg, inputs, outputs, inputURLs, outputURLs, containerIPs)
		if err != nil {
			return nil, err
		}
		out[i] = resolved
	}
	return out, nil
}

func substituteArg(arg string, inputs, outputs []boundPath, inputURLs, outputURLs []urlBacked, containerIPs map[string]string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(arg) {
		if arg[i] != '%' {
			b.WriteByte(arg[i])
			i++
			continue
		}
		rest := arg[i+1:]
		replacement, consumed, matched, err := matchPlaceholder(rest, inputs, outputs, inputURLs, outputURLs, containerIPs)
		if err != nil {
			return "", err
		}
		if !matched {
			b.WriteByte(arg[i])
			i++
			continue
		}
		b.WriteString(replacement)
		i += 1 + consumed
	}
	return b.String(), nil
}

func matchPlaceholder(rest string, inputs, outputs []boundPath, inputURLs, outputURLs []urlBacked, containerIPs map[string]string) (replacement string, consumed int, matched bool, err error) {
	switch {
	case strings.HasPrefix(rest, "containerIp["):
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return "", 0, false, nil
		}
		oid := rest[len("containerIp[") : end]
		total := end + 1
		if total < len(rest) && rest[total] == '%' {
			total++
		}
		ip, ok := containerIPs[oid]
		if !ok {
			return "", 0, false, fmt.Errorf("no resolved containerIp for oid %q", oid)
		}
		return ip, total, true, nil
	case strings.HasPrefix(rest, "iDataURL"):
		return resolveIndexedOrNamed(rest, "iDataURL", inputURLs)
	case strings.HasPrefix(rest, "oDataURL"):
		return resolveIndexedOrNamed(rest, "oDataURL", outputURLs)
	case strings.HasPrefix(rest, "i["):
		return resolveNamedPath(rest, "i[", inputs)
	case strings.HasPrefix(rest, "o["):
		return resolveNamedPath(rest, "o[", outputs)
	case strings.HasPrefix(rest, "i"):
		return resolveIndexedPath(rest, "i", inputs)
	case strings.HasPrefix(rest, "o"):
		return resolveIndexedPath(rest, "o", outputs)
	default:
		return "", 0, false, nil
	}
}

func resolveIndexedPath(rest, tag string, paths []boundPath) (string, int, bool, error) {
	digits := leadingDigits(rest[len(tag):])
	if digits == "" {
		return "", 0, false, nil
	}
	idx, _ := strconv.Atoi(digits)
	if idx < 0 || idx >= len(paths) {
		return "", 0, false, fmt.Errorf("%%%s%s references out-of-range index %d", tag, digits, idx)
	}
	return paths[idx].path, len(tag) + len(digits), true, nil
}

func resolveNamedPath(rest, tag string, paths []boundPath) (string, int, bool, error) {
	end := strings.IndexByte(rest, ']')
	if end < 0 {
		return "", 0, false, nil
	}
	uid := rest[len(tag):end]
	for _, p := range paths {
		if p.uid == uid {
			return p.path, end + 1, true, nil
		}
	}
	return "", 0, false, fmt.Errorf("%%%s%s] references unknown uid %q", tag, uid, uid)
}

func resolveIndexedOrNamed(rest, tag string, urls []urlBacked) (string, int, bool, error) {
	after := rest[len(tag):]
	if strings.HasPrefix(after, "[") {
		end := strings.IndexByte(after, ']')
		if end < 0 {
			return "", 0, false, nil
		}
		uid := after[1:end]
		for _, u := range urls {
			if u.uid == uid {
				return u.url, len(tag) + end + 1, true, nil
			}
		}
		return "", 0, false, fmt.Errorf("%%%s[%s] references unknown uid %q", tag, uid, uid)
	}
	digits := leadingDigits(after)
	if digits == "" {
		return "", 0, false, nil
	}
	idx, _ := strconv.Atoi(digits)
	if idx < 0 || idx >= len(urls) {
		return "", 0, false, fmt.Errorf("%%%s%s references out-of-range index %d", tag, digits, idx)
	}
	return urls[idx].url, len(tag) + len(digits), true, nil
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// shellQuote wraps s in single quotes for inclusion in a POSIX shell
// command line, escaping any single quotes it contains.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// buildSandboxCommand joins command into a single string invoked via
// `/bin/sh -c`. If user is set and ensureUserAndSwitch is true, a short
// prologue is prepended that creates a user sharing the host process's
// numeric UID (if one doesn't already exist), chowns every output
// directory to that user, and re-execs the original command under it
// with su, so files the sandboxed process creates are owned by the
// submitting user rather than root.
func buildSandboxCommand(user string, ensureUserAndSwitch bool, hostUID int, outputDirs []string, command []string) []string {
	quoted := make([]string, len(command))
	for i, c := range command {
		quoted[i] = shellQuote(c)
	}
	inner := strings.Join(quoted, " ")

	if !ensureUserAndSwitch || user == "" {
		return []string{"/bin/sh", "-c", inner}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "id -u %s >/dev/null 2>&1 || useradd -u %d -M %s\n", user, hostUID, user)
	for _, dir := range outputDirs {
		fmt.Fprintf(&b, "chown -R %s %s\n", user, shellQuote(dir))
	}
	fmt.Fprintf(&b, "exec su -l %s -c %s\n", user, shellQuote(inner))
	return []string{"/bin/sh", "-c", b.String()}
}
