// Package features decides which protocol features a block approves and
// guards the node against activated features it does not implement.
package features

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"liquid-node/logger"
	"liquid-node/models"
)

// ErrUnsupportedFeatureActive is returned when the durable history has
// activated a feature this node does not implement.
var ErrUnsupportedFeatureActive = errors.New("unimplemented feature activated on blockchain")

// UnsupportedFeatureExitCode is the process exit code of the default shutdown hook.
const UnsupportedFeatureExitCode = 38

// Provider exposes persisted voting and activation facts.
type Provider interface {
	ActivatedFeatures(height int) ([]models.FeatureID, error)
	FeatureVotesWithinWindow(height int) (map[models.FeatureID]int, error)
}

type Settings struct {
	CheckPeriod               int
	ActivationThreshold       int
	AutoShutdownOnUnsupported bool
	Implemented               []models.FeatureID
}

// Tracker evaluates feature votes at check-period boundaries.
type Tracker struct {
	settings    Settings
	provider    Provider
	implemented map[models.FeatureID]struct{}
	shutdown    func()
}

type Option func(*Tracker)

// WithShutdownHook replaces the process termination used when an
// unsupported feature is active and auto shutdown is on.
func WithShutdownHook(hook func()) Option {
	return func(t *Tracker) {
		t.shutdown = hook
	}
}

func NewTracker(settings Settings, provider Provider, opts ...Option) *Tracker {
	t := &Tracker{
		settings:    settings,
		provider:    provider,
		implemented: make(map[models.FeatureID]struct{}, len(settings.Implemented)),
		shutdown:    func() { os.Exit(UnsupportedFeatureExitCode) },
	}
	for _, f := range settings.Implemented {
		t.implemented[f] = struct{}{}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) unimplemented(fs []models.FeatureID) []models.FeatureID {
	var out []models.FeatureID
	for _, f := range fs {
		if _, ok := t.implemented[f]; !ok {
			out = append(out, f)
		}
	}
	return out
}

// CheckActivated runs before any block is processed. An activated feature
// this node does not implement is logged; with auto shutdown on, the
// shutdown hook runs and ErrUnsupportedFeatureActive is returned.
func (t *Tracker) CheckActivated(height int) error {
	activated, err := t.provider.ActivatedFeatures(height)
	if err != nil {
		return fmt.Errorf("could not read activated features at height %d: %w", height, err)
	}
	missing := t.unimplemented(activated)
	if len(missing) == 0 {
		return nil
	}

	msg := fmt.Sprintf("UNIMPLEMENTED %s ACTIVATED ON BLOCKCHAIN, UPDATE THE NODE IMMEDIATELY", models.DisplayFeatures(missing))
	if !t.settings.AutoShutdownOnUnsupported {
		logger.Logger.Warn(msg, zap.Int("height", height))
		return nil
	}
	logger.Logger.Error(msg, zap.Int("height", height))
	logger.Logger.Error("Shutting down because of unsupported activated features")
	t.shutdown()
	return fmt.Errorf("%w: %s", ErrUnsupportedFeatureActive, models.DisplayFeatures(missing))
}

// ApprovedWith returns the features approved by accepting block at height.
// Outside check-period boundaries nothing is approved.
func (t *Tracker) ApprovedWith(height int, block *models.Block) ([]models.FeatureID, error) {
	if t.settings.CheckPeriod <= 0 || height%t.settings.CheckPeriod != 0 {
		return nil, nil
	}
	votes, err := t.provider.FeatureVotesWithinWindow(height)
	if err != nil {
		return nil, fmt.Errorf("could not read feature votes at height %d: %w", height, err)
	}

	candidate := block.VoteSet()
	tally := make(map[models.FeatureID]int, len(votes)+len(candidate))
	for f, n := range votes {
		tally[f] = n
	}
	for _, f := range candidate {
		tally[f]++
	}

	var approved []models.FeatureID
	for f, n := range tally {
		if n >= t.settings.ActivationThreshold {
			approved = append(approved, f)
		}
	}
	models.SortFeatures(approved)

	if len(approved) > 0 {
		logger.Logger.Info(models.DisplayFeatures(approved)+" APPROVED ON BLOCKCHAIN", zap.Int("height", height))
	}
	if missing := t.unimplemented(approved); len(missing) > 0 {
		logger.Logger.Warn("UNIMPLEMENTED "+models.DisplayFeatures(missing)+" APPROVED ON BLOCKCHAIN", zap.Int("height", height))
	}
	return approved, nil
}
