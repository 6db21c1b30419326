// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inbound

import (
	"net/url"
	"strings"
)

// avatarURL builds an initials-avatar image URL for the sender's posted
// icon. Up to two initials are taken from the name; "U" when none exist.
func avatarURL(baseURL, name string) string {
	if baseURL == "" {
		return ""
	}

	var initials []rune
	for _, part := range strings.Fields(name) {
		initials = append(initials, []rune(part)[0])
		if len(initials) >= 2 {
			break
		}
	}
	text := strings.ToUpper(string(initials))
	if text == "" {
		text = "U"
	}

	params := url.Values{
		"text":     {text},
		"width":    {"200"},
		"height":   {"200"},
		"fontSize": {"100"},
		"font":     {"Inter"},
	}
	return strings.TrimSuffix(baseURL, "/") + "/api/logo?" + params.Encode()
}
