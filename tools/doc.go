// Package tools defines the MCP tool interfaces and the FreeTable tools
// that bridge MCP tool calls to the FreeTable booking API.
package tools
