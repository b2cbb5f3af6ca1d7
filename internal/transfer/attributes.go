package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"unicode/utf8"

	"github.com/pilotdata/pilotcli/internal/clierr"
	"github.com/pilotdata/pilotcli/internal/platform"
)

const (
	maxTags         = 10
	maxTextAttrLen  = 100
	attributeFormat = `{"<template name>": {"<attribute>": "<value>"}}`
)

var tagRE = regexp.MustCompile(`^[a-z0-9-]{1,32}$`)

// ValidateTags rejects malformed tags and removes duplicates.
func ValidateTags(tags []string) ([]string, error) {
	var out []string

	for _, t := range tags {
		if !tagRE.MatchString(t) {
			return nil, clierr.New(clierr.InvalidTag, "%q: tags are 1-32 lowercase letters, digits or dashes", t)
		}

		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}

	if len(out) > maxTags {
		return nil, clierr.New(clierr.InvalidTag, "at most %d tags are allowed, got %d", maxTags, len(out))
	}

	return out, nil
}

// ReadAttributeFile loads a JSON attribute file keyed by template name.
func ReadAttributeFile(path string) (map[string]map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading attribute file: %w", err)
	}

	var raw map[string]map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, clierr.Wrap(clierr.InvalidAttribute, err, "expected "+attributeFormat)
	}

	if len(raw) == 0 {
		return nil, clierr.New(clierr.InvalidAttribute, "%s names no template", path)
	}

	return raw, nil
}

// ValidateAttributes checks values against the project's templates.
func ValidateAttributes(given map[string]map[string]string, templates []platform.AttributeTemplate) ([]AttributeSet, error) {
	byName := make(map[string]platform.AttributeTemplate, len(templates))
	for _, t := range templates {
		byName[t.Name] = t
	}

	names := make([]string, 0, len(given))
	for name := range given {
		names = append(names, name)
	}

	sort.Strings(names)

	var (
		sets []AttributeSet
		errs []error
	)

	for _, name := range names {
		tmpl, ok := byName[name]
		if !ok {
			errs = append(errs, clierr.New(clierr.InvalidAttribute, "template %q does not exist in this project", name))
			continue
		}

		if tmplErrs := checkTemplate(tmpl, given[name]); len(tmplErrs) > 0 {
			errs = append(errs, tmplErrs...)
			continue
		}

		sets = append(sets, AttributeSet{ManifestID: tmpl.ID, ManifestName: tmpl.Name, Attributes: given[name]})
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return sets, nil
}

func checkTemplate(tmpl platform.AttributeTemplate, values map[string]string) []error {
	var errs []error

	specs := make(map[string]platform.AttributeSpec, len(tmpl.Attributes))
	for _, s := range tmpl.Attributes {
		specs[s.Name] = s

		if _, ok := values[s.Name]; !ok && !s.Optional {
			errs = append(errs, clierr.New(clierr.InvalidAttribute, "%s.%s is required", tmpl.Name, s.Name))
		}
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		s, ok := specs[k]
		if !ok {
			errs = append(errs, clierr.New(clierr.InvalidAttribute, "%s has no attribute %q", tmpl.Name, k))
			continue
		}

		v := values[k]

		switch s.Type {
		case platform.AttrText:
			if utf8.RuneCountInString(v) > maxTextAttrLen {
				errs = append(errs, clierr.New(clierr.InvalidAttribute, "%s.%s is longer than %d characters", tmpl.Name, k, maxTextAttrLen))
			}
		case platform.AttrMultipleChoice:
			if !slices.Contains(s.Options, v) {
				errs = append(errs, clierr.New(clierr.InvalidAttribute, "%s.%s must be one of %v", tmpl.Name, k, s.Options))
			}
		}
	}

	return errs
}
