package secrets

import (
	"net/url"
	"strings"
)

// Mask returns a masked version of a secret string for safe logging.
// Secrets longer than 8 chars keep their first 4 characters; shorter ones
// are fully hidden.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..."
}

// sensitiveParams are query parameters hidden by MaskURL.
var sensitiveParams = []string{"apikey", "api_key", "token", "password", "access_token"}

// MaskURL hides the password of a URL such as postgres://user:pw@host/db
// and the values of credential-bearing query parameters.
func MaskURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	masked := maskUserinfo(rawURL)
	q := strings.Index(masked, "?")
	if q == -1 {
		return masked
	}
	values, err := url.ParseQuery(masked[q+1:])
	if err != nil {
		return masked
	}
	changed := false
	for _, p := range sensitiveParams {
		if values.Has(p) {
			values.Set(p, "***")
			changed = true
		}
	}
	if !changed {
		return masked
	}
	return masked[:q+1] + values.Encode()
}

func maskUserinfo(rawURL string) string {
	schemeEnd := strings.Index(rawURL, "://")
	if schemeEnd == -1 {
		return rawURL
	}
	credStart := schemeEnd + 3

	// Passwords may contain '@'; the last one before the query ends userinfo.
	end := len(rawURL)
	if q := strings.Index(rawURL, "?"); q != -1 {
		end = q
	}
	atIdx := strings.LastIndex(rawURL[:end], "@")
	if atIdx < credStart {
		return rawURL
	}
	colonIdx := strings.Index(rawURL[credStart:atIdx], ":")
	if colonIdx == -1 {
		return rawURL
	}
	return rawURL[:credStart+colonIdx+1] + "***" + rawURL[atIdx:]
}
