package cache

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// Key derives a cache key from a purpose tag and its positional
// arguments. The derivation is deterministic and order-sensitive: the
// same purpose and arguments always produce the same key, and distinct
// purposes never collide because the tag sits outside the hash.
func Key(purpose string, args ...string) string {
	sum := md5.Sum([]byte(strings.Join(args, "_")))
	return purpose + ":" + hex.EncodeToString(sum[:])
}

// AnalysisKey identifies a full analysis result for one (url, style,
// occasion) triple.
func AnalysisKey(url, style, occasion string) string {
	return Key(purposeAnalysis, url, style, occasion)
}

// CleanedTextKey identifies the cleaned page text for one url.
func CleanedTextKey(url string) string {
	return Key(purposeText, url)
}

// StepsKey identifies the intermediate summarization steps for one url.
func StepsKey(url string) string {
	return Key(purposeSteps, url)
}
