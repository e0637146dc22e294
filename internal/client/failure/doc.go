// Package failure is the single place that turns a raw failure signal into an
// error category, a retry policy kind and an ordered list of user-facing
// suggestions.
//
// Other packages report failures as *Error values (or plain errors) and call
// Classify; none of them match on error text themselves.
//
// # Taxonomy
//
//	category    meaning                          retryable
//	auth        missing/invalid credential       no
//	format      unsupported/corrupt image        no
//	size        exceeds configured ceiling       no
//	validation  fails basic sanity checks        no
//	reader      local file-read failure          yes (short delay)
//	network     transport/connectivity failure   yes (exponential)
//	processing  remote-side processing failure   yes (exponential)
//	unknown     uncategorized                    yes (exponential)
package failure
