package models

import (
	"fmt"
	"sort"
	"strings"
)

// FeatureID identifies a protocol upgrade that blocks vote for.
type FeatureID int16

var featureDescriptions = map[FeatureID]string{
	1: "Microblock chaining",
	2: "Fair fee distribution",
	3: "Mass transfer transactions",
	4: "Smart accounts",
}

func (f FeatureID) String() string {
	if d, ok := featureDescriptions[f]; ok {
		return fmt.Sprintf("%d (%s)", int16(f), d)
	}
	return fmt.Sprintf("%d (unknown feature)", int16(f))
}

// SortFeatures sorts feature ids in place and returns the slice.
func SortFeatures(fs []FeatureID) []FeatureID {
	sort.Slice(fs, func(i, j int) bool { return fs[i] < fs[j] })
	return fs
}

// DisplayFeatures renders a feature set for log output.
func DisplayFeatures(fs []FeatureID) string {
	parts := make([]string, 0, len(fs))
	for _, f := range fs {
		parts = append(parts, f.String())
	}
	if len(parts) == 1 {
		return "FEATURE " + parts[0]
	}
	return "FEATURES " + strings.Join(parts, ", ")
}
