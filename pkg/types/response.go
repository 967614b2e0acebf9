package types

// SuccessEnvelope wraps every successful payload under "data" so clients
// never have to sniff the response shape.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

// APIError carries a code from the pkg/errors vocabulary plus optional
// structured details (e.g. the valid transitions for a rejected status
// change).
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
