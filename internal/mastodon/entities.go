package mastodon

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrDecode is returned when a response body is not valid JSON or lacks a
// field the exporter requires.
var ErrDecode = errors.New("mastodon: decode body")

// lastStatusLayout is the calendar-date format of Account.last_status_at.
const lastStatusLayout = "2006-01-02"

// InstanceInfo holds the fields of the Instance entity the exporter publishes.
type InstanceInfo struct {
	Domain                        string
	Title                         string
	Version                       string
	RegistrationsEnabled          bool
	RegistrationsApprovalRequired bool
}

// AccountInfo holds the fields of the Account entity the exporter publishes.
type AccountInfo struct {
	Username       string
	FollowersCount int64
	FollowingCount int64
	StatusesCount  int64

	// LastStatusAt is midnight UTC of the day of the most recent status, or
	// nil when the account has never posted.
	LastStatusAt *time.Time
}

// Wire shapes. Pointers distinguish "absent or null" from a zero value.
type instanceResponse struct {
	Domain        *string `json:"domain"`
	Title         *string `json:"title"`
	Version       *string `json:"version"`
	Registrations *struct {
		Enabled          *bool `json:"enabled"`
		ApprovalRequired *bool `json:"approval_required"`
	} `json:"registrations"`
}

type accountResponse struct {
	Username       *string `json:"username"`
	FollowersCount *int64  `json:"followers_count"`
	FollowingCount *int64  `json:"following_count"`
	StatusesCount  *int64  `json:"statuses_count"`
	LastStatusAt   *string `json:"last_status_at"`
}

// DecodeInstance parses an /api/v2/instance response body.
func DecodeInstance(body []byte) (*InstanceInfo, error) {
	var r instanceResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: instance: %v", ErrDecode, err)
	}

	switch {
	case r.Domain == nil:
		return nil, missing("instance", "domain")
	case r.Title == nil:
		return nil, missing("instance", "title")
	case r.Version == nil:
		return nil, missing("instance", "version")
	case r.Registrations == nil:
		return nil, missing("instance", "registrations")
	case r.Registrations.Enabled == nil:
		return nil, missing("instance", "registrations.enabled")
	case r.Registrations.ApprovalRequired == nil:
		return nil, missing("instance", "registrations.approval_required")
	}

	return &InstanceInfo{
		Domain:                        *r.Domain,
		Title:                         *r.Title,
		Version:                       *r.Version,
		RegistrationsEnabled:          *r.Registrations.Enabled,
		RegistrationsApprovalRequired: *r.Registrations.ApprovalRequired,
	}, nil
}

// DecodeAccount parses an /api/v1/accounts/:id response body.
func DecodeAccount(body []byte) (*AccountInfo, error) {
	var r accountResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, fmt.Errorf("%w: account: %v", ErrDecode, err)
	}

	switch {
	case r.Username == nil:
		return nil, missing("account", "username")
	case r.FollowersCount == nil:
		return nil, missing("account", "followers_count")
	case r.FollowingCount == nil:
		return nil, missing("account", "following_count")
	case r.StatusesCount == nil:
		return nil, missing("account", "statuses_count")
	}

	info := &AccountInfo{
		Username:       *r.Username,
		FollowersCount: *r.FollowersCount,
		FollowingCount: *r.FollowingCount,
		StatusesCount:  *r.StatusesCount,
	}

	if r.LastStatusAt != nil {
		ts, err := parseLastStatusAt(*r.LastStatusAt)
		if err != nil {
			return nil, fmt.Errorf("%w: account: last_status_at: %v", ErrDecode, err)
		}
		info.LastStatusAt = &ts
	}
	return info, nil
}

// parseLastStatusAt accepts the documented YYYY-MM-DD form. Servers older than
// Mastodon 3.1 sent a full timestamp; that is accepted and truncated to the day.
func parseLastStatusAt(s string) (time.Time, error) {
	if d, err := time.ParseInLocation(lastStatusLayout, s, time.UTC); err == nil {
		return d, nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	}
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC), nil
}

func missing(entity, field string) error {
	return fmt.Errorf("%w: %s: missing field %q", ErrDecode, entity, field)
}
