// Package toolserver is the REST backend the browser gateway and CLI talk to.
// It generates tools from queries, stores them and serves the registry.
//
// Routes:
//
//	GET    /              liveness message
//	GET    /tools         every tool, creation order
//	POST   /send          {"query": "..."} -> generated tool, or {"error": "..."}
//	DELETE /tools         {"id": ...} -> {"message": "Deleted successfully" | "Tool not found"}
//	GET    /tools/search  ?q=&limit= -> ranked tools
//	GET    /health        status and uptime
//
// Invariants:
// - Generation failures answer 200 with an error field so clients can show the reason.
// - POST /send is rate limited per client IP.
package toolserver
