package model

// Namespace is the reserved prefix carried by every span the pipeline owns.
const Namespace = "tapwire"

// Reserved attribute keys.
const (
	KeyProvider       = Namespace + ".provider"
	KeyBillingSpan    = "is_billing_span"
	KeyRequestBinary  = Namespace + ".request.binary_data"
	KeyResponseBinary = Namespace + ".response.binary_data"

	// ResponseHeaderPrefix namespaces captured response headers, one key per header.
	ResponseHeaderPrefix = Namespace + ".http.response.header."
	// TagPrefix namespaces user tags carried in context.
	TagPrefix = Namespace + ".tag."
	// BillingPrefix namespaces billing span attributes.
	BillingPrefix = Namespace + ".billing."

	KeyURL             = "http.url"
	KeyHost            = "http.host"
	KeyMethod          = "http.method"
	KeyStatusCode      = "http.status_code"
	KeyContentType     = "content-type"
	KeyContentEncoding = "content-encoding"
	KeyResponseSize    = Namespace + ".response.size"
)
