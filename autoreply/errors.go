package autoreply

import (
	"errors"

	"github.com/hazyhaar/replyd/autoreply/internal/classify"
)

var (
	// ErrConfig marks an invalid configuration. Fatal at startup.
	ErrConfig = errors.New("autoreply: invalid config")
	// ErrNotLoggedIn is returned by Run when the feed session never
	// authenticates. Fatal at startup.
	ErrNotLoggedIn = errors.New("autoreply: not logged in")
	// ErrClassifierTimeout and ErrClassifier are the classifier's failure
	// outcomes.
	ErrClassifierTimeout = classify.ErrTimeout
	ErrClassifier        = classify.ErrClassifier
	// ErrNoAPIKey is returned when classification is enabled without a key.
	ErrNoAPIKey = classify.ErrNoAPIKey
)
