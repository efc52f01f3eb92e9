// Package testutil contains helper builders used across tests to reduce
// boilerplate when constructing backend event scripts (agent messages, tool
// calls, commands, plans). These helpers are intentionally minimal and not
// intended for production usage.
package testutil
