// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

import (
	"strings"
	"unicode/utf8"
)

const sharedPrefix = "$share/"

// IsTopicFilterMatch reports whether a topic name matches a topic filter,
// including "+" and "#" wildcards and "$share/<group>/" shared filters.
// Wildcard filters never match topics starting with "$".
func IsTopicFilterMatch(filter, topic string) bool {
	if rest, ok := strings.CutPrefix(filter, sharedPrefix); ok {
		_, f, found := strings.Cut(rest, "/")
		if !found {
			return false
		}
		filter = f
	}

	if strings.HasPrefix(topic, "$") &&
		(strings.HasPrefix(filter, "#") || strings.HasPrefix(filter, "+")) {
		return false
	}

	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		switch {
		case f == "#":
			return i == len(fs)-1
		case i >= len(ts):
			return false
		case f != "+" && f != ts[i]:
			return false
		}
	}
	return len(fs) == len(ts)
}

// ValidateTopicFilter checks the MQTT rules for a subscription filter.
func ValidateTopicFilter(filter string) error {
	f := filter
	if rest, ok := strings.CutPrefix(f, sharedPrefix); ok {
		group, sub, found := strings.Cut(rest, "/")
		if !found || group == "" || strings.ContainsAny(group, "+#") {
			return &InvalidArgumentError{message: "invalid shared subscription " + filter}
		}
		f = sub
	}
	if err := validateUTF8("topic filter", f); err != nil {
		return err
	}

	levels := strings.Split(f, "/")
	for i, l := range levels {
		switch {
		case l == "#" && i != len(levels)-1:
			return &InvalidArgumentError{message: "'#' must be the last level of " + filter}
		case l != "#" && l != "+" && strings.ContainsAny(l, "+#"):
			return &InvalidArgumentError{message: "wildcards must occupy a whole level in " + filter}
		}
	}
	return nil
}

// ValidateTopicName checks the MQTT rules for a publish topic.
func ValidateTopicName(topic string) error {
	if err := validateUTF8("topic name", topic); err != nil {
		return err
	}
	if strings.ContainsAny(topic, "+#") {
		return &InvalidArgumentError{message: "wildcards are not allowed in topic name " + topic}
	}
	return nil
}

func validateUTF8(what, s string) error {
	switch {
	case s == "":
		return &InvalidArgumentError{message: what + " must not be empty"}
	case len(s) > 65535:
		return &InvalidArgumentError{message: what + " is too long"}
	case !utf8.ValidString(s) || strings.ContainsRune(s, 0):
		return &InvalidArgumentError{message: what + " is not a valid MQTT string"}
	}
	return nil
}
