package capture

import (
	"path"
	"sort"
	"strings"
)

// hosts maps exact API hostnames to provider keys.
var hosts = map[string]string{
	// generative AI
	"api.openai.com":      "openai",
	"api.anthropic.com":   "anthropic",
	"api.mistral.ai":      "mistral",
	"api.voyageai.com":    "voyageai",
	"api.perplexity.ai":   "perplexity",
	"api.elevenlabs.io":   "elevenlabs",
	"api.deepgram.com":    "deepgram",
	// tools
	"serpapi.com":         "serpapi",
	"api.firecrawl.dev":   "firecrawl",
	"app.scrapingbee.com": "scrapingbee",
}

type globRule struct {
	glob     string
	provider string
}

// hostRules are tried when no exact host matches.
var hostRules = []globRule{
	{"*aiplatform.googleapis.com", "vertexai"},
	{"bedrock-runtime.*.amazonaws.com", "bedrock"},
}

// serviceRules map fully qualified gRPC service names to provider keys,
// most specific first.
var serviceRules = bySpecificity([]globRule{
	{"google.cloud.documentai.*", "gcp-documentai"},
	{"google.cloud.vision.*", "gcp-vision"},
	{"google.cloud.aiplatform.*", "gcp-vertexai"},
	{"aws.textract.*", "aws-textract"},
})

// LookupHost returns the provider key for a request host. A port suffix is
// ignored.
func LookupHost(host string) (string, bool) {
	host = strings.ToLower(host)
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	if p, ok := hosts[host]; ok {
		return p, true
	}
	return match(hostRules, host)
}

// LookupService returns the provider key for a gRPC service name such as
// "google.cloud.vision.v1.ImageAnnotator".
func LookupService(service string) (string, bool) {
	return match(serviceRules, service)
}

func match(rules []globRule, name string) (string, bool) {
	for _, r := range rules {
		if ok, _ := path.Match(r.glob, name); ok {
			return r.provider, true
		}
	}
	return "", false
}

func bySpecificity(rules []globRule) []globRule {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].glob) > len(rules[j].glob)
	})
	return rules
}
