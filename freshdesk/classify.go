package freshdesk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type errorMapping struct {
	kind    Kind
	message string
}

// errorMappings holds the documented Freshdesk error statuses.
var errorMappings = map[int]errorMapping{
	http.StatusBadRequest: {
		kind:    KindValidation,
		message: "The request body/query string is not in the correct format.",
	},
	http.StatusUnauthorized: {
		kind:    KindAuthentication,
		message: "The Authorization header is either missing or incorrect.",
	},
	http.StatusForbidden: {
		kind:    KindAccessDenied,
		message: "The agent whose credentials were used to make this request was not authorized to perform this API call.",
	},
	http.StatusNotFound: {
		kind:    KindNotFound,
		message: "The request contains invalid ID/Freshdesk domain in the URL or an invalid URL itself.",
	},
	http.StatusMethodNotAllowed: {
		kind:    KindMethodNotAllowed,
		message: "This API request used the wrong HTTP verb/method.",
	},
	http.StatusNotAcceptable: {
		kind:    KindUnsupportedAcceptHeader,
		message: "Only application/json and */* are supported in 'Accepted' header.",
	},
	http.StatusConflict: {
		kind:    KindConflictingState,
		message: "The resource that is being created/updated is in an inconsistent or conflicting state.",
	},
	http.StatusUnsupportedMediaType: {
		kind:    KindUnsupportedContent,
		message: "Content type application/xml is not supported. Only application/json is supported.",
	},
	http.StatusTooManyRequests: {
		kind:    KindRateLimit,
		message: "The API rate limit allotted for your Freshdesk domain has been exhausted.",
	},
	http.StatusInternalServerError: {
		kind:    KindServer,
		message: "Unexpected Server Error.",
	},
}

const unknownErrorMessage = "Unknown Error"

// CanonicalMessage returns the documented description for a status, or
// "Unknown Error" for statuses without one.
func CanonicalMessage(status int) string {
	if m, ok := errorMappings[status]; ok {
		return m.message
	}
	return unknownErrorMessage
}

// ClassifyResponse maps a non-200 response to a classified error. A body that
// is not a JSON object is treated as empty.
func ClassifyResponse(status int, body []byte) *Error {
	// fields are decoded loosely so a mistyped description keeps the code
	var parsed map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			parsed = nil
		}
	}

	kind := KindUnknown
	if m, ok := errorMappings[status]; ok {
		kind = m.kind
	} else if status > http.StatusInternalServerError {
		kind = KindServer5xx
	}

	message := CanonicalMessage(status)
	if description, ok := parsed["description"]; ok && description != nil {
		message = fmt.Sprint(description)
	}

	return &Error{
		Kind:       kind,
		StatusCode: status,
		Code:       codeString(parsed["code"]),
		Message:    message,
	}
}

// codeString formats the sub-code. Zero and empty values count as absent.
func codeString(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case float64:
		if c == 0 {
			return ""
		}
	case bool:
		if !c {
			return ""
		}
	case []any:
		if len(c) == 0 {
			return ""
		}
	case map[string]any:
		if len(c) == 0 {
			return ""
		}
	}
	return fmt.Sprintf("%v", v)
}
