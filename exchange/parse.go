/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package exchange

import (
	"strings"

	"github.com/samber/lo"
)

// ParseExclusions splits free text with one name per line into a list of
// trimmed, distinct names. Blank lines are ignored.
func ParseExclusions(text string) []string {
	names := lo.Map(strings.Split(text, "\n"), func(line string, _ int) string {
		return strings.TrimSpace(line)
	})

	return lo.Uniq(lo.Compact(names))
}
