package metrics

import (
	"regexp"
	"strings"
)

const unknownLabelValue = "unknown"

// Default label keys identifying the polled node, in render order.
const (
	LabelVerMajor = "ver_major"
	LabelVerMinor = "ver_minor"
	LabelVerPatch = "ver_patch"
	LabelBuild    = "build"
	LabelNetwork  = "network"
)

// Examples:
//
//	"stellar-core 11.1.0-unstablerc2 (324c1bd61b0e9bada63e0d696d799421b00a7950)"
//	"stellar-core 11.1.0 (324c1bd61b0e9bada63e0d696d799421b00a7950)"
//	"v11.1.0"
var buildPattern = regexp.MustCompile(`^(stellar-core|v) ?(\d+)\.(\d+)\.(\d+).*$`)

var (
	whitespacePattern = regexp.MustCompile(`\s`)
	parenReplacer     = strings.NewReplacer("(", "", ")", "")
)

// Label is one key/value dimension of a series.
type Label struct {
	Key   string
	Value string
}

// LabelSet is an ordered list of labels with unique keys.
type LabelSet []Label

// Get returns value for key.
// Params: key label name.
// Returns: value and true when present.
func (s LabelSet) Get(key string) (string, bool) {
	for _, label := range s {
		if label.Key == key {
			return label.Value, true
		}
	}
	return "", false
}

// With returns a copy of s with extra labels appended after the existing ones.
// Params: extra labels in the order they must be rendered.
// Returns: new label set; an extra key already present replaces the earlier value in place.
func (s LabelSet) With(extra ...Label) LabelSet {
	out := make(LabelSet, len(s), len(s)+len(extra))
	copy(out, s)
	for _, label := range extra {
		replaced := false
		for idx := range out {
			if out[idx].Key == label.Key {
				out[idx].Value = label.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, label)
		}
	}
	return out
}

// BuildLabels merges default labels with per-record extra labels.
// Params: defaults node identity labels; extra per-record labels.
// Returns: merged label set, defaults first.
func BuildLabels(defaults LabelSet, extra ...Label) LabelSet {
	return defaults.With(extra...)
}

// UnknownLabels returns the placeholder identity used when node info is unavailable.
func UnknownLabels() LabelSet {
	return LabelSet{
		{Key: LabelVerMajor, Value: unknownLabelValue},
		{Key: LabelVerMinor, Value: unknownLabelValue},
		{Key: LabelVerPatch, Value: unknownLabelValue},
		{Key: LabelBuild, Value: unknownLabelValue},
		{Key: LabelNetwork, Value: unknownLabelValue},
	}
}

// BuildDefaultLabels derives the node identity label set from its build string and network.
// Params: build free-form build identifier; network passphrase reported by the node.
// Returns: five default labels; all "unknown" when build does not match the version pattern.
func BuildDefaultLabels(build string, network string) LabelSet {
	match := buildPattern.FindStringSubmatch(build)
	if match == nil {
		return UnknownLabels()
	}

	return LabelSet{
		{Key: LabelVerMajor, Value: match[2]},
		{Key: LabelVerMinor, Value: match[3]},
		{Key: LabelVerPatch, Value: match[4]},
		{Key: LabelBuild, Value: sanitizeBuild(build)},
		{Key: LabelNetwork, Value: network},
	}
}

// sanitizeBuild lowercases build and strips whitespace and parentheses.
func sanitizeBuild(build string) string {
	out := whitespacePattern.ReplaceAllString(build, "_")
	out = strings.ToLower(out)
	return parenReplacer.Replace(out)
}
