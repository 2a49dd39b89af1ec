// Package types provides the canonical wire types shared across RouteCodex:
// messages, tool schemas, token usage, and the structured error taxonomy.
// This package has zero dependencies on other routecodex packages so that
// llmswitch, vrouter, compat, runtime, and normalizer can all import it
// without import cycles.
package types
