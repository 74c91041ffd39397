package runtime

import (
	"fmt"

	"github.com/microcosm-cc/bluemonday"
)

var sanitizePolicies = map[string]*bluemonday.Policy{
	"strict": bluemonday.StrictPolicy(),
	"ugc":    bluemonday.UGCPolicy(),
	"externalugc": bluemonday.UGCPolicy().
		AddTargetBlankToFullyQualifiedLinks(true).
		AllowRelativeURLs(false),
}

// SanitizeHTML runs a named bluemonday policy ("strict", "ugc",
// "externalugc") over html and returns the scrubbed result.
func SanitizeHTML(policyName, html string) (string, error) {
	policy, ok := sanitizePolicies[policyName]
	if !ok {
		return "", fmt.Errorf("gsp/runtime: unknown sanitize policy %q", policyName)
	}
	return policy.Sanitize(html), nil
}
