// Package internalcheck holds repo-internal static-analysis tests for
// this module's cryptographic core. It is not part of the public API
// and should never be imported outside this directory.
package internalcheck
