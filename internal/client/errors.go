package client

// TransportError is any failure of the HTTP call: a non-2xx status or a
// network-level error.
type TransportError struct {
	// StatusCode is zero when no response was received.
	StatusCode int
	// Detail is the server-supplied "detail" field, if any.
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err == nil && e.Detail == "":
		return "transport error"
	case e.Err == nil:
		return e.Detail
	case e.Detail != "":
		return e.Err.Error() + ": " + e.Detail
	}
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error { return e.Err }

// Message is the text shown to the user: the server detail when present,
// the transport error otherwise.
func (e *TransportError) Message() string {
	if e.Detail != "" || e.Err == nil {
		return e.Detail
	}
	return e.Err.Error()
}
