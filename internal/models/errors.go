package models

import (
	"errors"
	"fmt"
)

// ErrValidation reports a per-field validation failure.
type ErrValidation struct {
	Field   string
	Message string
}

func (e ErrValidation) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Sentinel errors returned by model Validate methods.
var (
	ErrNameRequired         = errors.New("name is required")
	ErrURLRequired          = errors.New("url is required")
	ErrInvalidURL           = errors.New("invalid URL format")
	ErrInvalidSourceType    = errors.New("invalid source type: must be 'm3u'")
	ErrInvalidEpgSourceType = errors.New("invalid epg source type: must be 'xmltv'")
	ErrExpressionRequired   = errors.New("expression is required")
	ErrStreamURLRequired    = errors.New("stream_url is required")
	ErrChannelIDRequired    = errors.New("channel_id is required")
	ErrStartTimeRequired    = errors.New("start time is required")
	ErrEndTimeRequired      = errors.New("end time is required")
	ErrTitleRequired        = errors.New("title is required")
	ErrInvalidTimeRange     = errors.New("end time must be after start time")
	ErrSourceIDRequired     = errors.New("source_id is required")
	ErrProxyIDRequired      = errors.New("proxy_id is required")
	ErrEpgSourceIDRequired  = errors.New("epg_source_id is required")
	ErrFilterIDRequired     = errors.New("filter_id is required")
	ErrRuleIDRequired       = errors.New("rule_id is required")
)
