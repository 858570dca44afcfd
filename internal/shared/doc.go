// Package shared contains the error taxonomy used on both sides of the proxy.
//
// # Error Kinds
//
// Every failure that crosses the proxy boundary is one of:
//
//   - TransportError (ErrTransport): no response was obtained, possibly transient
//   - AuthError (ErrAuth): token missing, not obtainable or rejected; needs re-authentication
//   - UpstreamError (ErrUpstream): the resource server answered non-2xx; Status and Body verbatim
//   - ValidationError (ErrValidation): business or input rejection with field violations
//
// Use KindOf() to classify errors:
//
//	switch shared.KindOf(err) {
//	case shared.KindAuth:
//	    // ask the user to log in again
//	case shared.KindTransport:
//	    // show the connectivity screen
//	}
//
// Or the predicates:
//
//	if shared.IsUserNotFound(err) {
//	    // offer to create the user
//	}
//
// # Boundary Conversion
//
// Classify turns any error into a member of the taxonomy. Unclassified errors,
// deadlines and network errors become TransportError, so callers beyond the proxy
// never observe raw errors:
//
//	resp, err := client.Do(ctx, req)
//	if err != nil {
//	    return shared.Classify(err)
//	}
//
// # Kind Priority Table
//
// When multiple kinds are present (e.g. errors.Join), KindOf returns the highest priority:
//
//	Priority | Kind            | Description
//	---------|-----------------|----------------------------
//	1        | KindCanceled    | Context cancellation
//	2        | KindAuth        | Authorization failure
//	3        | KindValidation  | Validation violation
//	4        | KindUpstream    | Upstream non-2xx answer
//	5        | KindTransport   | Connectivity failure
//
// # User Messages
//
// UserMessage maps connectivity failures to ConnectivityMessage and returns any
// other message verbatim.
package shared
