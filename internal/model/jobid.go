package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

const (
	jobIDPrefix    = "job"
	jobIDSuffixLen = 9
)

// NewJobID returns an identifier of the form job-<unix millis>-<suffix>.
// The embedded timestamp lets the status reader tell a job that has not
// landed in the store yet from one that never existed.
func NewJobID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:jobIDSuffixLen]
	return jobIDPrefix + "-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + suffix
}

// JobIDTime extracts the creation time embedded in a job id.
func JobIDTime(id string) (time.Time, error) {
	parts := strings.SplitN(id, "-", 3)
	if len(parts) != 3 || parts[0] != jobIDPrefix || parts[2] == "" {
		return time.Time{}, eris.Errorf("model: malformed job id %q", id)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, eris.Errorf("model: malformed job id timestamp %q", id)
	}
	return time.UnixMilli(ms).UTC(), nil
}
