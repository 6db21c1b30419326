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

package normalizer

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

var (
	doubleStarBoldRe = regexp.MustCompile(`\*\*(.+?)\*\*`)
	excessNewlinesRe = regexp.MustCompile(`\n{3,}`)
)

// htmlToMrkdwn converts cleaned HTML to Slack mrkdwn. Links become
// <url|label> (or bare <url> when the label is the URL itself) and images
// are dropped entirely; extracted image URLs are posted as separate blocks.
func htmlToMrkdwn(src string) (string, error) {
	conv := md.NewConverter("", true, &md.Options{
		HeadingStyle:   "atx",
		CodeBlockStyle: "fenced",
		EmDelimiter:    "_",
	})

	conv.AddRules(
		md.Rule{
			Filter: []string{"a"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				href, ok := selec.Attr("href")
				if !ok || href == "" {
					return md.String(content)
				}
				if content == href {
					return md.String("<" + href + ">")
				}
				return md.String("<" + href + "|" + content + ">")
			},
		},
		md.Rule{
			Filter: []string{"img"},
			Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
				return md.String("")
			},
		},
	)

	out, err := conv.ConvertString(src)
	if err != nil {
		return "", err
	}

	// Slack bold is single asterisks.
	out = doubleStarBoldRe.ReplaceAllString(out, "*$1*")
	out = excessNewlinesRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out), nil
}
