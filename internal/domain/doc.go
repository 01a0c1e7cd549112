// Package domain defines the core business entities of the service:
// entitlements, the fixed set of publication styles, and the validation
// rules that apply to them regardless of storage or transport.
package domain
