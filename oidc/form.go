// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Param is a single form field.
type Param struct {
	Key   string
	Value string
}

// EncodeForm percent-encodes params as key=value pairs joined by "&",
// preserving their order.  Spaces are encoded as %20.
func EncodeForm(params ...Param) string {
	pairs := make([]string, 0, len(params))
	for _, p := range params {
		pairs = append(pairs, escape(p.Key)+"="+escape(p.Value))
	}
	return strings.Join(pairs, "&")
}

// ParseForm parses form encoded data, such as a callback URL fragment.  A
// leading "#" or "?" is ignored, a field without "=" has an empty value and
// when a key repeats the last value wins.  "+" is not decoded as a space.
func ParseForm(s string) (map[string]string, error) {
	const op = "oidc.ParseForm"
	s = strings.TrimLeft(s, "#?")
	fields := map[string]string{}
	if s == "" {
		return fields, nil
	}
	for _, pair := range strings.Split(s, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.PathUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to decode key %q: %s: %w", op, k, err, ErrInvalidParameter)
		}
		val, err := url.PathUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("%s: unable to decode value of %q: %s: %w", op, key, err, ErrInvalidParameter)
		}
		fields[key] = val
	}
	return fields, nil
}

// URLFragment returns everything after the last "#" of u, or u itself when
// it has no fragment.
func URLFragment(u string) string {
	if i := strings.LastIndex(u, "#"); i >= 0 {
		return u[i+1:]
	}
	return u
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func unescape(s string) (string, error) {
	return url.PathUnescape(s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
