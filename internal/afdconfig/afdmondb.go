// Package afdconfig parses the monitor's configuration files: the
// AFD_MON_DB host list and the permissions file grammar from spec §6.
// Both grammars are whitespace-separated, `#`-comment-tolerant text
// formats, parsed the way eval_afd_mon_db.c walks its input buffer:
// field by field, applying a default when a field is missing and
// logging WARN when one is malformed, rather than rejecting the whole
// line.
package afdconfig

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	maxAliasLength    = 12
	maxHostnameLength = 40
	maxIntLength      = 9

	// DefaultPort and DefaultPollInterval mirror
	// eval_afd_mon_db.c's DEFAULT_AFD_PORT_NO/DEFAULT_POLL_INTERVAL
	// fallbacks, applied whenever a field is absent or unparsable.
	DefaultPort         = 4469
	DefaultPollInterval = 20
)

// AFDEntry is one parsed line of AFD_MON_DB: a remote AFD to probe.
type AFDEntry struct {
	Alias        string
	Hostname     string
	Port         int
	PollInterval int
	ConvertUser  string // local user name to translate from, if set
	RemoteUser   string // remote user name to translate to
}

// ParseAFDMonDB parses the AFD_MON_DB grammar: per non-comment,
// non-blank line, `alias hostname port poll_interval
// [convert_user[->remote_user]]`. Missing trailing fields default per
// spec §6; truncation and invalid-numeric fallbacks are logged at
// WARN rather than failing the parse, matching eval_afd_mon_db.c's
// per-field recovery.
func ParseAFDMonDB(data []byte, log *logrus.Entry) ([]AFDEntry, error) {
	var entries []AFDEntry
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		entry := AFDEntry{
			Port:         DefaultPort,
			PollInterval: DefaultPollInterval,
		}

		entry.Alias = truncate(fields[0], maxAliasLength, log, "AFD alias")
		entry.Hostname = entry.Alias

		if len(fields) > 1 {
			entry.Hostname = truncate(fields[1], maxHostnameLength, log, "real hostname for "+entry.Alias)
		}

		if len(fields) > 2 {
			if port, ok := parseInt(fields[2], log, "TCP port field for "+entry.Alias); ok {
				entry.Port = port
			}
		}

		if len(fields) > 3 {
			if interval, ok := parseInt(fields[3], log, "poll interval field for "+entry.Alias); ok {
				entry.PollInterval = interval
			}
		}

		if len(fields) > 4 {
			entry.ConvertUser, entry.RemoteUser = splitConvertUser(fields[4])
		}

		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func truncate(s string, max int, log *logrus.Entry, what string) string {
	if len(s) <= max {
		return s
	}
	log.Warnf("maximum length for %s exceeded in AFD_MON_CONFIG, truncating to %d characters", what, max)
	return s[:max]
}

func parseInt(field string, log *logrus.Entry, what string) (int, bool) {
	if len(field) > maxIntLength {
		log.Warnf("numeric value too large (>%d characters) for %s, using default", maxIntLength, what)
		return 0, false
	}
	n, err := strconv.Atoi(field)
	if err != nil {
		log.Warnf("non-numeric character in %s, using default", what)
		return 0, false
	}
	return n, true
}

// splitConvertUser splits a "local->remote" user-conversion field; if
// there is no "->", the whole field is taken as both the local and
// remote user name, matching the teacher's convert_username[0]/[1]
// pair being left equal when no arrow is present.
func splitConvertUser(field string) (local, remote string) {
	if idx := strings.Index(field, "->"); idx != -1 {
		return field[:idx], field[idx+2:]
	}
	return field, field
}
