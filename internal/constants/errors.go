package constants

import "errors"

// Configuration errors.
var (
	ErrNoBaseURLConfigured  = errors.New("no API URL configured, use 'sapcom config set url <url>' or --url")
	ErrNoUsernameConfigured = errors.New("no username configured, use 'sapcom config set username <name>' or --username")
	ErrNoPasswordConfigured = errors.New("no password configured and stdin is not a terminal, set SAPCOM_PASSWORD or --password")
	ErrUnknownConfigKey     = errors.New("unknown configuration key")
	ErrInvalidConfigValue   = errors.New("invalid configuration value")
)

// Command errors.
var (
	ErrInvalidFilterFlag  = errors.New("filter must be in the form field=value")
	ErrUnknownFilterField = errors.New("unknown filter field")
	ErrUnknownOutput      = errors.New("unknown output format")
	ErrRunNotSuccessful   = errors.New("pipeline run did not succeed")
	ErrApplyFailed        = errors.New("one or more resources failed to apply")
	ErrInvalidDocument    = errors.New("invalid resource document")
	ErrNoDocuments        = errors.New("no resource documents found")
)
